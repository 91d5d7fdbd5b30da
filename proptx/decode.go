package proptx

import (
	"encoding/json"
)

// stringNumber accepts string or number JSON and stores as string.
// PropTx key fields are documented as strings but some feeds emit
// bare numbers; decode defensively.
type stringNumber string

func (s *stringNumber) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = stringNumber(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	*s = stringNumber(num.String())
	return nil
}

func (s stringNumber) String() string { return string(s) }

// propertyPage is the OData envelope around a Property result set.
// Count is present only when the request asked for $count=true.
type propertyPage struct {
	Count *int64    `json:"@odata.count"`
	Value []Listing `json:"value"`
}

func decodePropertyPage(raw []byte) (propertyPage, error) {
	var page propertyPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return propertyPage{}, err
	}
	return page, nil
}

type mediaPage struct {
	Value []MediaRecord `json:"value"`
}

func decodeMediaPage(raw []byte) (mediaPage, error) {
	var page mediaPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return mediaPage{}, err
	}
	return page, nil
}
