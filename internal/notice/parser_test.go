package notice

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

const sampleNotice = `<?xml version="1.0" encoding="UTF-8"?>
<ns2:export xmlns:ns2="http://zakupki.gov.ru/oos/export/1" xmlns="http://zakupki.gov.ru/oos/types/1">
  <ns2:fcsNotificationEA44 schemeVersion="8.2">
    <purchaseNumber>0373100000119000001</purchaseNumber>
    <docPublishDate>2019-01-09T12:34:56.789+03:00</docPublishDate>
    <purchaseObjectInfo>Поставка "Windows 10"</purchaseObjectInfo>
    <lot>
      <maxPrice>150000.50</maxPrice>
      <purchaseObjects>
        <purchaseObject>
          <OKPD2><code>58.29.29.000</code><name>Обеспечение программное прикладное прочее</name></OKPD2>
        </purchaseObject>
        <purchaseObject>
          <OKPD2><code>26.20.11.110</code></OKPD2>
          <maxPrice>1.00</maxPrice>
        </purchaseObject>
      </purchaseObjects>
    </lot>
    <purchaseNumber>ignored</purchaseNumber>
  </ns2:fcsNotificationEA44>
</ns2:export>`

func TestParse(t *testing.T) {
	n, err := Parse([]byte(sampleNotice))
	require.NoError(t, err)

	assert.Equal(t, "58.29.29.000", n.ClassificationCode)
	assert.Equal(t, "0373100000119000001", n.Name)
	assert.Equal(t, `Поставка "Windows 10"`, n.ObjectDescription)
	assert.Equal(t, "150000.5", n.MaxPrice.String())
	assert.Equal(t, 2019, n.PublishDate.Year())
	assert.Equal(t, time.January, n.PublishDate.Month())
	assert.Equal(t, 9, n.PublishDate.Day())
}

func TestParseCodeOnlyFromFirstOKPD2(t *testing.T) {
	doc := `<r><code>outside</code><OKPD2><name>x</name></OKPD2><OKPD2><code>62.01</code></OKPD2>
<purchaseNumber>1</purchaseNumber><docPublishDate>2020-02-01</docPublishDate><maxPrice>1</maxPrice><purchaseObjectInfo>x</purchaseObjectInfo></r>`
	_, err := Parse([]byte(doc))
	var missing *MissingFieldError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, FieldClassificationCode, missing.Field)
}

func TestParseMissingFields(t *testing.T) {
	for _, field := range []string{"purchaseNumber", "docPublishDate", "maxPrice", "purchaseObjectInfo"} {
		t.Run(field, func(t *testing.T) {
			doc := removeElement(sampleNotice, field)
			_, err := Parse([]byte(doc))
			var missing *MissingFieldError
			require.True(t, errors.As(err, &missing), "got %v", err)
			assert.Equal(t, field, missing.Field)
			assert.True(t, IsRecordError(err))
		})
	}
}

func TestParseMalformedValues(t *testing.T) {
	doc := strings.Replace(sampleNotice, "150000.50", "150 000,50", 1)
	_, err := Parse([]byte(doc))
	var malformed *MalformedFieldError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, FieldMaxPrice, malformed.Field)

	doc = strings.Replace(sampleNotice, "2019-01-09T12:34:56.789+03:00", "09.01.2019", 1)
	_, err = Parse([]byte(doc))
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, FieldPublishDate, malformed.Field)
}

func TestParseNotXML(t *testing.T) {
	_, err := Parse([]byte("<unclosed"))
	require.Error(t, err)
	assert.False(t, IsRecordError(err))
}

func TestParseWindows1251(t *testing.T) {
	doc := strings.Replace(sampleNotice, `encoding="UTF-8"`, `encoding="windows-1251"`, 1)
	encoded, err := charmap.Windows1251.NewEncoder().String(doc)
	require.NoError(t, err)

	n, err := Parse([]byte(encoded))
	require.NoError(t, err)
	assert.Equal(t, `Поставка "Windows 10"`, n.ObjectDescription)
}

func TestParseDate(t *testing.T) {
	for _, s := range []string{
		"2019-01-09T12:34:56.789+03:00",
		"2019-01-09T12:34:56Z",
		"2019-01-09T12:34:56",
		"2019-01-09+03:00",
		"2019-01-09",
	} {
		d, err := ParseDate(s)
		require.NoError(t, err, s)
		assert.Equal(t, 9, d.Day(), s)
	}
	_, err := ParseDate("yesterday")
	assert.Error(t, err)
}

// removeElement drops the first <name>...</name> pair from doc.
func removeElement(doc, name string) string {
	open := "<" + name + ">"
	close := "</" + name + ">"
	i := strings.Index(doc, open)
	j := strings.Index(doc, close)
	if i < 0 || j < 0 {
		return doc
	}
	out := doc[:i] + doc[j+len(close):]
	// later duplicates would otherwise stand in for the removed element
	for strings.Contains(out, open) {
		i = strings.Index(out, open)
		j = strings.Index(out, close)
		out = out[:i] + out[j+len(close):]
	}
	return out
}
