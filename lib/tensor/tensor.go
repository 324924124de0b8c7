package tensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
)

// ErrShape is returned when a payload is not a nested numeric array.
var ErrShape = errors.New("expected a nested numeric array")

// Matrix is the nested numeric array exchanged with an inference endpoint.
type Matrix [][]float64

func (m Matrix) ToJSON() ([]byte, error) {
	rows := m
	if rows == nil {
		rows = Matrix{}
	}
	return json.Marshal([][]float64(rows))
}

func (m Matrix) String() string {
	sb := strings.Builder{}
	sb.WriteRune('[')
	for i, row := range m {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteRune('[')
		for j, v := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		}
		sb.WriteRune(']')
	}
	sb.WriteRune(']')
	return sb.String()
}

// FromJSON decodes a response body such as `[[4.9999918937683105]]`.
func FromJSON(data []byte) (Matrix, error) {
	vdata, vtype, _, err := jsonparser.Get(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if vtype != jsonparser.Array {
		return nil, fmt.Errorf("%w, found %s", ErrShape, vtype)
	}
	var ret Matrix
	var errs []error
	handler := func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		row, err := parseRow(value, dataType)
		if err != nil {
			errs = append(errs, err)
			return
		}
		ret = append(ret, row)
	}
	if _, err := jsonparser.ArrayEach(vdata, handler); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(errs) != 0 {
		return nil, errs[0]
	}
	if ret == nil {
		ret = Matrix{}
	}
	return ret, nil
}

func parseRow(vdata []byte, vtype jsonparser.ValueType) ([]float64, error) {
	if vtype != jsonparser.Array {
		return nil, fmt.Errorf("%w, found row of type %s", ErrShape, vtype)
	}
	row := []float64{}
	var errs []error
	handler := func(value []byte, dataType jsonparser.ValueType, offset int, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		if dataType != jsonparser.Number {
			errs = append(errs, fmt.Errorf("%w, found element of type %s", ErrShape, dataType))
			return
		}
		f, err := jsonparser.ParseFloat(value)
		if err != nil {
			errs = append(errs, err)
			return
		}
		row = append(row, f)
	}
	if _, err := jsonparser.ArrayEach(vdata, handler); err != nil {
		return nil, err
	}
	if len(errs) != 0 {
		return nil, errs[0]
	}
	return row, nil
}

// Equal compares two matrices element by element with no tolerance.
func Equal(a, b Matrix) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}
