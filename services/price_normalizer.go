package services

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"scrapmetal_backend/models"
)

// Canonical PriceRecord fields
const (
	FieldMetalID       = "metalId"
	FieldMetalName     = "metalName"
	FieldGrade         = "grade"
	FieldNationalPrice = "nationalPrice"
	FieldTimestamp     = "timestamp"
)

// FieldAliases maps each canonical field to the source keys tried, in order
var FieldAliases = map[string][]string{
	FieldMetalID:       {"metalId", "metal_id", "metalID", "id", "slug", "code"},
	FieldMetalName:     {"metalName", "metal_name", "name", "metal", "title"},
	FieldGrade:         {"grade", "metal_grade", "metalGrade", "type", "grade_name", "category"},
	FieldNationalPrice: {"nationalPrice", "national_price", "price", "value", "pricePerLb", "price_per_lb", "rate", "amount"},
	FieldTimestamp:     {"timestamp", "updated_at", "updatedAt", "date", "time", "observed_at"},
}

// RecordArrayKeys are the wrapper keys probed, in order, when the response is an object
var RecordArrayKeys = []string{"prices", "data", "results", "rows", "items"}

const (
	defaultMetalName = "Unknown Metal"
	defaultGrade     = "Standard"
	maxNestingDepth  = 2 // top level plus one wrapper object
)

// NormalizeResult is the outcome of normalizing one response body
type NormalizeResult struct {
	Records []models.PriceRecord
	Skipped int
}

// NormalizePrices turns a pricing response body into canonical remote records.
// Individual bad records are dropped; ErrParse means no record array was found
// and ErrNoRecords means every record was dropped.
func NormalizePrices(body []byte, fetchedAt time.Time) (*NormalizeResult, error) {
	items, err := FindRecordArray(body)
	if err != nil {
		return nil, err
	}

	result := &NormalizeResult{Records: make([]models.PriceRecord, 0, len(items))}
	seen := make(map[string]bool, len(items))

	for i, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			result.Skipped++
			continue
		}

		record, err := NormalizeRecord(item, fetchedAt)
		if err != nil {
			result.Skipped++
			log.WithError(err).WithField("index", i).Debug("Skipping price record")
			continue
		}
		if seen[record.MetalID] {
			result.Skipped++
			continue
		}
		seen[record.MetalID] = true
		result.Records = append(result.Records, record)
	}

	if len(result.Records) == 0 {
		return result, errors.Wrapf(ErrNoRecords, "%d records skipped", result.Skipped)
	}
	return result, nil
}

// FindRecordArray locates the record array in a response of unknown shape.
// Probe order: a top-level array, an array under one of RecordArrayKeys, an
// array under RecordArrayKeys one object level down (e.g. {"data":{"prices":[...]}}),
// then the first array-valued key in document order.
func FindRecordArray(body []byte) ([]interface{}, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.Wrap(ErrParse, "empty body")
	}

	switch body[0] {
	case '[':
		items, err := decodeArray(body)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "decode array"), ErrParse)
		}
		return items, nil

	case '{':
		fields, err := orderedObject(body)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "decode object"), ErrParse)
		}
		if items, ok := probeRecordKeys(fields, 1); ok {
			return items, nil
		}
		for _, f := range fields {
			if items, err := decodeArray(f.raw); err == nil {
				return items, nil
			}
		}
		return nil, errors.Wrap(ErrParse, "no array-valued key in response object")
	}

	return nil, errors.Wrapf(ErrParse, "unexpected response: %s", preview(body))
}

// probeRecordKeys looks for an array under RecordArrayKeys, first at this
// level, then inside object-valued candidates down to maxNestingDepth.
func probeRecordKeys(fields objectFields, depth int) ([]interface{}, bool) {
	for _, key := range RecordArrayKeys {
		if raw, ok := fields.get(key); ok {
			if items, err := decodeArray(raw); err == nil {
				return items, true
			}
		}
	}
	if depth >= maxNestingDepth {
		return nil, false
	}

	for _, key := range RecordArrayKeys {
		raw, ok := fields.get(key)
		if !ok {
			continue
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 || raw[0] != '{' {
			continue
		}
		nested, err := orderedObject(raw)
		if err != nil {
			continue
		}
		if items, ok := probeRecordKeys(nested, depth+1); ok {
			return items, true
		}
	}
	return nil, false
}

// decodeArray decodes raw only when it is a JSON array
func decodeArray(raw []byte) ([]interface{}, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, errors.New("not an array")
	}
	var items []interface{}
	if err := decodeJSON(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// NormalizeRecord extracts one canonical record via FieldAliases
func NormalizeRecord(item map[string]interface{}, fetchedAt time.Time) (models.PriceRecord, error) {
	priceValue, ok := lookupField(item, FieldNationalPrice)
	if !ok {
		return models.PriceRecord{}, errors.New("missing price")
	}
	price, err := ParsePrice(priceValue)
	if err != nil {
		return models.PriceRecord{}, err
	}

	name := textField(item, FieldMetalName)
	grade := textField(item, FieldGrade)
	id := textField(item, FieldMetalID)
	if grade == "" {
		grade = defaultGrade
	}
	if id == "" {
		if name == "" {
			return models.PriceRecord{}, errors.New("missing metal id and name")
		}
		id = slugify(name + " " + grade)
	}
	if name == "" {
		name = defaultMetalName
	}

	timestamp := fetchedAt
	if v, ok := lookupField(item, FieldTimestamp); ok {
		if ts, ok := ParseTimestamp(v); ok {
			timestamp = ts
		}
	}

	return models.PriceRecord{
		MetalID:       id,
		MetalName:     name,
		Grade:         grade,
		NationalPrice: price,
		Timestamp:     timestamp,
		Source:        models.SourceRemote,
	}, nil
}

// ParsePrice accepts numbers and strings such as "$3.50" or "1,204.75 /lb".
// The result is rounded to 4 places and must be positive.
func ParsePrice(v interface{}) (float64, error) {
	var d decimal.Decimal
	var err error

	switch val := v.(type) {
	case json.Number:
		d, err = decimal.NewFromString(val.String())
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return 0, errors.Newf("price is not finite: %v", val)
		}
		d = decimal.NewFromFloat(val)
	case int:
		d = decimal.NewFromInt(int64(val))
	case string:
		token, tokErr := numericToken(val)
		if tokErr != nil {
			return 0, tokErr
		}
		d, err = decimal.NewFromString(token)
	default:
		return 0, errors.Newf("unsupported price type %T", v)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "invalid price %v", v)
	}

	price := d.Round(4).InexactFloat64()
	if price <= 0 || math.IsInf(price, 0) || math.IsNaN(price) {
		return 0, errors.Newf("price must be positive, got %v", v)
	}
	return price, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// ParseTimestamp accepts common string layouts and unix seconds or milliseconds
func ParseTimestamp(v interface{}) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), true
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return unixTime(n), true
		}
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return unixTime(n), true
		}
	case float64:
		return unixTime(int64(val)), true
	}
	return time.Time{}, false
}

func unixTime(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

// lookupField returns the first alias present with a non-empty value
func lookupField(item map[string]interface{}, field string) (interface{}, bool) {
	for _, key := range FieldAliases[field] {
		v, ok := item[key]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

func textField(item map[string]interface{}, field string) string {
	v, ok := lookupField(item, field)
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return ""
}

var numberPattern = regexp.MustCompile(`[-+]?(?:\d[\d,]*(?:\.\d+)?|\.\d+)(?:[eE][-+]?\d+)?`)

// numericToken extracts the single number in s, dropping currency symbols,
// thousands separators and units. Ranges such as "3.50-3.60" are rejected.
func numericToken(s string) (string, error) {
	tokens := numberPattern.FindAllString(s, -1)
	switch len(tokens) {
	case 0:
		return "", errors.Newf("price %q has no digits", s)
	case 1:
		return strings.TrimPrefix(strings.ReplaceAll(tokens[0], ",", ""), "+"), nil
	default:
		return "", errors.Newf("price %q is ambiguous", s)
	}
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

type objectField struct {
	key string
	raw json.RawMessage
}

type objectFields []objectField

func (f objectFields) get(key string) (json.RawMessage, bool) {
	for _, field := range f {
		if field.key == key {
			return field.raw, true
		}
	}
	return nil, false
}

// orderedObject decodes the top level of a JSON object keeping document order
func orderedObject(body []byte) (objectFields, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	var fields objectFields
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.Newf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		fields = append(fields, objectField{key: key, raw: raw})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return fields, nil
}

func decodeJSON(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
