// Package notice extracts purchase records from zakupki notification documents.
package notice

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html/charset"
)

// Element names read from a notification, matched by local name so that the
// ns2:/ns3: prefixes of the published schema do not matter.
const (
	tagOKPD2       = "OKPD2"
	tagCode        = "code"
	tagNumber      = "purchaseNumber"
	tagPublishDate = "docPublishDate"
	tagMaxPrice    = "maxPrice"
	tagObjectInfo  = "purchaseObjectInfo"
)

// Field names used in errors and logs.
const (
	FieldClassificationCode = "OKPD2/code"
	FieldName               = tagNumber
	FieldPublishDate        = tagPublishDate
	FieldMaxPrice           = tagMaxPrice
	FieldObjectDescription  = tagObjectInfo
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02Z07:00",
	"2006-01-02",
}

// Notice is the fixed set of fields the pipeline needs from one document.
type Notice struct {
	ClassificationCode string
	Name               string
	PublishDate        time.Time
	MaxPrice           decimal.Decimal
	ObjectDescription  string
}

// MissingFieldError reports a required element that is absent or empty.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return "missing field " + e.Field
}

// MalformedFieldError reports a value that could not be converted.
type MalformedFieldError struct {
	Field string
	Value string
	Err   error
}

func (e *MalformedFieldError) Error() string {
	return fmt.Sprintf("malformed field %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *MalformedFieldError) Unwrap() error { return e.Err }

// IsRecordError reports whether err is a per-document field problem, as
// opposed to a document that is not XML at all.
func IsRecordError(err error) bool {
	var missing *MissingFieldError
	var malformed *MalformedFieldError
	return errors.As(err, &missing) || errors.As(err, &malformed)
}

type rawFields struct {
	values map[string]string
	found  map[string]bool
}

func (r *rawFields) set(field, value string) {
	if r.found[field] {
		return
	}
	r.found[field] = true
	r.values[field] = strings.TrimSpace(value)
}

func (r *rawFields) complete() bool {
	return len(r.found) == 5
}

// Parse reads one notification document. For every field the first element
// in document order wins.
func Parse(data []byte) (Notice, error) {
	raw, err := scan(bytes.NewReader(data))
	if err != nil {
		return Notice{}, err
	}

	for _, field := range []string{FieldClassificationCode, FieldName, FieldPublishDate, FieldMaxPrice} {
		if raw.values[field] == "" {
			return Notice{}, &MissingFieldError{Field: field}
		}
	}
	if !raw.found[FieldObjectDescription] {
		return Notice{}, &MissingFieldError{Field: FieldObjectDescription}
	}

	published, err := ParseDate(raw.values[FieldPublishDate])
	if err != nil {
		return Notice{}, &MalformedFieldError{Field: FieldPublishDate, Value: raw.values[FieldPublishDate], Err: err}
	}
	price, err := decimal.NewFromString(raw.values[FieldMaxPrice])
	if err != nil {
		return Notice{}, &MalformedFieldError{Field: FieldMaxPrice, Value: raw.values[FieldMaxPrice], Err: err}
	}

	return Notice{
		ClassificationCode: raw.values[FieldClassificationCode],
		Name:               raw.values[FieldName],
		PublishDate:        published,
		MaxPrice:           price,
		ObjectDescription:  raw.values[FieldObjectDescription],
	}, nil
}

// ParseDate accepts the ISO-8601 variants seen in published documents.
func ParseDate(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

func scan(r io.Reader) (*rawFields, error) {
	raw := &rawFields{values: make(map[string]string), found: make(map[string]bool)}
	simple := map[string]string{
		tagNumber:      FieldName,
		tagPublishDate: FieldPublishDate,
		tagMaxPrice:    FieldMaxPrice,
		tagObjectInfo:  FieldObjectDescription,
	}

	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel

	depth := 0
	okpdDepth := -1 // depth of the first OKPD2 element while it is open
	seenOKPD2 := false

	for !raw.complete() {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			local := t.Name.Local
			field, isSimple := simple[local]
			switch {
			case local == tagCode && okpdDepth >= 0 && !raw.found[FieldClassificationCode]:
				field, isSimple = FieldClassificationCode, true
			case isSimple && raw.found[field]:
				isSimple = false
			}
			if isSimple {
				var text string
				if err := d.DecodeElement(&text, &t); err != nil {
					return nil, fmt.Errorf("decode %s: %w", local, err)
				}
				raw.set(field, text)
				continue
			}
			depth++
			if local == tagOKPD2 && !seenOKPD2 {
				seenOKPD2 = true
				okpdDepth = depth
			}
		case xml.EndElement:
			if depth == okpdDepth {
				okpdDepth = -1
			}
			depth--
		}
	}
	return raw, nil
}
