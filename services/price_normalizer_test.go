package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrapmetal_backend/models"
)

var fetchedAt = time.Date(2024, 2, 5, 12, 0, 0, 0, time.UTC)

func TestNormalizePricesAliasedFields(t *testing.T) {
	body := `{"data":[{"metal_id":"copper-1","name":"Copper","metal_grade":"#1","price":"$3.50","date":"2024-01-01T00:00:00Z"}]}`

	result, err := NormalizePrices([]byte(body), fetchedAt)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	r := result.Records[0]
	assert.Equal(t, "copper-1", r.MetalID)
	assert.Equal(t, "Copper", r.MetalName)
	assert.Equal(t, "#1", r.Grade)
	assert.Equal(t, 3.50, r.NationalPrice)
	assert.Equal(t, models.SourceRemote, r.Source)
	assert.True(t, r.Timestamp.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestFindRecordArrayShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"direct array", `[{"id":"a"},{"id":"b"}]`, 2},
		{"prices key", `{"prices":[{"id":"a"}]}`, 1},
		{"data key", `{"meta":{},"data":[{"id":"a"},{"id":"b"},{"id":"c"}]}`, 3},
		{"results key", `{"results":[{"id":"a"}]}`, 1},
		{"rows key", `{"rows":[{"id":"a"}]}`, 1},
		{"items key", `{"items":[{"id":"a"}]}`, 1},
		{"candidate order wins over document order", `{"items":[{"id":"a"}],"prices":[{"id":"a"},{"id":"b"}]}`, 2},
		{"nested under data", `{"data":{"prices":[{"id":"a"},{"id":"b"}]}}`, 2},
		{"first array valued key", `{"ok":true,"metals":[{"id":"a"}],"other":[{"id":"b"},{"id":"c"}]}`, 1},
		{"leading whitespace", "\n  [{\"id\":\"a\"}]", 1},
		{"later candidate array beats nested non-candidate", `{"data":{"tags":["weekly"]},"items":[{"id":"a"},{"id":"b"}]}`, 2},
		{"nested candidate beats first array key", `{"tags":["x"],"data":{"results":[{"id":"a"},{"id":"b"}]}}`, 2},
		{"nested object without candidates", `{"data":{"tags":["weekly"]},"metals":[{"id":"a"}]}`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := FindRecordArray([]byte(tt.body))
			require.NoError(t, err)
			assert.Len(t, items, tt.want)
		})
	}
}

func TestFindRecordArrayRejectsUnusableBodies(t *testing.T) {
	for _, body := range []string{"", "null", `"prices"`, `{"status":"ok"}`, `{"data":`, "<html></html>"} {
		_, err := FindRecordArray([]byte(body))
		assert.True(t, errors.Is(err, ErrParse), "body %q: %v", body, err)
	}
}

func TestNormalizePricesSkipsInvalidRecords(t *testing.T) {
	body := `[
		{"id":"copper-1","name":"Copper","price":3.5},
		{"id":"brass-red","name":"Brass","price":-1},
		{"id":"steel","name":"Steel","price":"abc"},
		{"id":"zero","name":"Zero","price":0},
		{"name":"Nameless price missing"},
		"not an object",
		{"id":"copper-1","name":"Duplicate","price":9}
	]`

	result, err := NormalizePrices([]byte(body), fetchedAt)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "Copper", result.Records[0].MetalName)
	assert.Equal(t, 6, result.Skipped)
}

func TestNormalizePricesAllInvalid(t *testing.T) {
	_, err := NormalizePrices([]byte(`[{"id":"a","price":-1},{"id":"b","price":"abc"}]`), fetchedAt)
	assert.True(t, errors.Is(err, ErrNoRecords))
}

func TestNormalizePricesPrefersCandidateKeyOverNestedArrays(t *testing.T) {
	body := `{"data":{"tags":["weekly"]},"items":[{"id":"copper-1","name":"Copper","price":3.5}]}`

	result, err := NormalizePrices([]byte(body), fetchedAt)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "copper-1", result.Records[0].MetalID)
	assert.Zero(t, result.Skipped)
}

func TestNormalizeRecordDefaults(t *testing.T) {
	record, err := NormalizeRecord(map[string]interface{}{
		"name":  "Yellow Brass",
		"value": json.Number("2.1"),
	}, fetchedAt)
	require.NoError(t, err)

	assert.Equal(t, "yellow-brass-standard", record.MetalID)
	assert.Equal(t, "Standard", record.Grade)
	assert.Equal(t, 2.1, record.NationalPrice)
	assert.True(t, record.Timestamp.Equal(fetchedAt))

	record, err = NormalizeRecord(map[string]interface{}{
		"code":       "steel-hms",
		"pricePerLb": "0.12",
		"updated_at": "not a date",
	}, fetchedAt)
	require.NoError(t, err)
	assert.Equal(t, "steel-hms", record.MetalID)
	assert.Equal(t, "Unknown Metal", record.MetalName)
	assert.True(t, record.Timestamp.Equal(fetchedAt))

	_, err = NormalizeRecord(map[string]interface{}{"price": 1.0}, fetchedAt)
	assert.Error(t, err)
}

func TestNormalizeRecordAliasPriority(t *testing.T) {
	record, err := NormalizeRecord(map[string]interface{}{
		"id":            "generic",
		"metalId":       "preferred",
		"price":         json.Number("1.00"),
		"nationalPrice": json.Number("2.00"),
	}, fetchedAt)
	require.NoError(t, err)
	assert.Equal(t, "preferred", record.MetalID)
	assert.Equal(t, 2.0, record.NationalPrice)

	// blank values fall through to the next alias
	record, err = NormalizeRecord(map[string]interface{}{
		"metalId": "  ",
		"id":      "fallthrough",
		"price":   "",
		"amount":  "4",
	}, fetchedAt)
	require.NoError(t, err)
	assert.Equal(t, "fallthrough", record.MetalID)
	assert.Equal(t, 4.0, record.NationalPrice)
}

func TestParsePrice(t *testing.T) {
	valid := map[interface{}]float64{
		"$3.50":             3.50,
		"1,204.75":          1204.75,
		" 0.65 /lb ":        0.65,
		"USD 2.10":          2.10,
		json.Number("0.08"): 0.08,
		0.125:               0.125,
		"3.123456":          3.1235,
		"1.5e2":             150,
		"3.50/lb.":          3.50,
		"+2.25":             2.25,
		".75 per lb":        0.75,
	}
	for in, want := range valid {
		got, err := ParsePrice(in)
		require.NoError(t, err, "input %v", in)
		assert.Equal(t, want, got, "input %v", in)
	}

	for _, in := range []interface{}{"abc", "", "-1", "0", "$0.00", "3.50-3.60", "$3 for 2 lb", true, nil, 0.0, -2.5, "0.00001"} {
		_, err := ParsePrice(in)
		assert.Error(t, err, "input %v", in)
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, in := range []interface{}{
		"2024-01-01T00:00:00Z",
		"2024-01-01",
		"2024-01-01 00:00:00",
		json.Number("1704067200"),
		json.Number("1704067200000"),
		"1704067200",
	} {
		got, ok := ParseTimestamp(in)
		require.True(t, ok, "input %v", in)
		assert.True(t, got.Equal(want), "input %v got %s", in, got)
	}

	_, ok := ParseTimestamp("last monday")
	assert.False(t, ok)
}
