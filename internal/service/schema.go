package service

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"vizboard/dashboard/internal/model"
)

const (
	// Prefix cap for huge files: completeness traded for bounded latency.
	proberSampleBytes    = 4 << 20
	proberLargeFileBytes = 8 << 20

	// Row limits by file size tier.
	proberRowLimitSmall = 2000
	proberRowLimitLarge = 500

	// At most this many non-empty values vote per column.
	proberMaxVotes = 50

	// Mixed integer/float columns must not be truncated to integer: when
	// number votes exceed this share of non-null samples, number wins even
	// if integer got more votes.
	numberVoteShare = 0.30

	// Extrapolation guard for non-representative prefixes.
	maxRowEstimate = 1_000_000

	previewRowLimit = 20
)

// ProbeResult is the output of one schema inference pass.
type ProbeResult struct {
	Schema           model.SchemaMap
	RowCountEstimate int64
	Preview          *model.PreviewRows
}

// InferSchema samples a bounded prefix of the file and infers a column
// schema by type voting. It never fails: any parse error yields the minimal
// fallback schema, because inference must not abort an ingestion.
// sampleRowLimit <= 0 selects the size-tier default.
func InferSchema(fileName string, data []byte, sampleRowLimit int) ProbeResult {
	if sampleRowLimit <= 0 {
		sampleRowLimit = proberRowLimitSmall
		if int64(len(data)) > proberLargeFileBytes {
			sampleRowLimit = proberRowLimitLarge
		}
	}

	var (
		headers     []string
		rows        [][]string
		sampleBytes int64
		err         error
	)

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		headers, rows, sampleBytes, err = parseCSVSample(data, sampleRowLimit)
	case ".json":
		headers, rows, sampleBytes, err = parseJSONSample(data, sampleRowLimit)
	default:
		// Binary spreadsheet formats are stored as-is and not sampled here.
		err = fmt.Errorf("no sampler for %s", fileName)
	}
	if err != nil || len(headers) == 0 {
		return ProbeResult{
			Schema:           model.FallbackSchema(),
			RowCountEstimate: 0,
			Preview:          nil,
		}
	}

	schema := make(model.SchemaMap, 0, len(headers))
	for col, name := range headers {
		schema = append(schema, model.ColumnSchema{
			Name: name,
			Type: voteColumnType(rows, col),
		})
	}

	return ProbeResult{
		Schema:           schema,
		RowCountEstimate: estimateRowCount(int64(len(data)), sampleBytes, len(rows)),
		Preview:          buildPreview(headers, rows),
	}
}

// voteColumnType tallies cast-test votes over at most proberMaxVotes
// non-empty values and picks the winner. Tie-break order is
// boolean > integer > number > date > string. An all-empty column is string.
func voteColumnType(rows [][]string, col int) model.ColumnType {
	votes := map[model.ColumnType]int{}
	sampled := 0

	for _, row := range rows {
		if sampled >= proberMaxVotes {
			break
		}
		if col >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[col])
		if v == "" {
			continue
		}
		sampled++
		votes[classifyValue(v)]++
	}

	if sampled == 0 {
		return model.ColumnString
	}

	order := []model.ColumnType{
		model.ColumnBoolean,
		model.ColumnInteger,
		model.ColumnNumber,
		model.ColumnDate,
		model.ColumnString,
	}
	winner := model.ColumnString
	best := -1
	for _, t := range order {
		if votes[t] > best {
			winner, best = t, votes[t]
		}
	}

	if winner == model.ColumnInteger {
		if float64(votes[model.ColumnNumber]) > numberVoteShare*float64(sampled) {
			return model.ColumnNumber
		}
	}
	return winner
}

// classifyValue cast-tests a single value. Each value votes for exactly one
// type; anything unparseable is a string vote.
func classifyValue(v string) model.ColumnType {
	if _, ok := parseBoolLoose(v); ok {
		return model.ColumnBoolean
	}
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return model.ColumnInteger
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return model.ColumnNumber
	}
	if parseDateLoose(v) {
		return model.ColumnDate
	}
	return model.ColumnString
}

var boolTruthy = map[string]bool{"true": true, "t": true, "yes": true, "y": true}
var boolFalsy = map[string]bool{"false": true, "f": true, "no": true, "n": true}

func parseBoolLoose(v string) (bool, bool) {
	lower := strings.ToLower(v)
	if boolTruthy[lower] {
		return true, true
	}
	if boolFalsy[lower] {
		return false, true
	}
	return false, false
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"01/02/2006",
	"02.01.2006",
}

func parseDateLoose(v string) bool {
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

// parseCSVSample reads headers plus up to limit data rows from a bounded
// prefix of the file. The prefix is cut at the last newline so a half line
// never skews the sample.
func parseCSVSample(data []byte, limit int) (headers []string, rows [][]string, sampleBytes int64, err error) {
	sample := data
	if len(sample) > proberSampleBytes {
		sample = sample[:proberSampleBytes]
		if i := bytes.LastIndexByte(sample, '\n'); i > 0 {
			sample = sample[:i+1]
		}
	}
	sampleBytes = int64(len(sample))

	reader := csv.NewReader(bytes.NewReader(sample))
	reader.FieldsPerRecord = -1

	headers, err = reader.Read()
	if err != nil {
		return nil, nil, 0, err
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	for len(rows) < limit {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Skip malformed rows; best-effort sampling.
			continue
		}
		rows = append(rows, record)
	}
	return headers, rows, sampleBytes, nil
}

// parseJSONSample streams a JSON array of flat objects, preserving the key
// order of the objects as they first appear.
func parseJSONSample(data []byte, limit int) (headers []string, rows [][]string, sampleBytes int64, err error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, 0, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, nil, 0, fmt.Errorf("expected a JSON array of objects")
	}

	seen := map[string]bool{}
	for dec.More() && len(rows) < limit {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, nil, 0, err
		}

		keys, values, err := decodeFlatObject(raw)
		if err != nil {
			return nil, nil, 0, err
		}
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}

		row := make([]string, len(headers))
		for i, h := range headers {
			row[i] = values[h]
		}
		rows = append(rows, row)
	}

	if len(headers) == 0 {
		return nil, nil, 0, fmt.Errorf("no objects in JSON array")
	}

	sampleBytes = dec.InputOffset()
	if !dec.More() {
		// The whole array was consumed; the row count is exact.
		sampleBytes = int64(len(data))
	}
	return headers, rows, sampleBytes, nil
}

// decodeFlatObject returns an object's keys in document order together with
// stringified scalar values. Nested values are kept as raw JSON text.
func decodeFlatObject(raw json.RawMessage) ([]string, map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("array element is not an object")
	}

	var keys []string
	values := map[string]string{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("non-string object key")
		}

		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return nil, nil, err
		}

		keys = append(keys, key)
		values[key] = stringifyJSONValue(val)
	}
	return keys, values, nil
}

func stringifyJSONValue(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return string(raw)
	}
}

// estimateRowCount is exact when the sample covered the whole file and a
// linear bytes-per-row extrapolation otherwise, capped so a skewed prefix
// cannot produce a pathological estimate.
func estimateRowCount(fileBytes, sampleBytes int64, sampledRows int) int64 {
	if sampledRows == 0 {
		return 0
	}
	if sampleBytes >= fileBytes {
		return int64(sampledRows)
	}
	bytesPerRow := float64(sampleBytes) / float64(sampledRows)
	estimate := int64(math.Round(float64(fileBytes) / bytesPerRow))
	if estimate > maxRowEstimate {
		return maxRowEstimate
	}
	return estimate
}

func buildPreview(headers []string, rows [][]string) *model.PreviewRows {
	n := len(rows)
	if n > previewRowLimit {
		n = previewRowLimit
	}
	preview := &model.PreviewRows{Headers: headers, Rows: make([][]string, n)}
	copy(preview.Rows, rows[:n])
	return preview
}
