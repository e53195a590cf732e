package qubo

import "fmt"

// ShapeMismatchError reports a dimension disagreement between the
// response operator and a histogram or scale vector. Shapes are never
// silently truncated or padded; the encoder fails at construction.
type ShapeMismatchError struct {
	Context string
	Got     int
	Want    int
}

func (e ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch: %s has %d entries, response expects %d", e.Context, e.Got, e.Want)
}

// EncodingError reports an invalid encoding parameter such as a
// negative regularization strength or a bit width below 1.
type EncodingError struct {
	Reason string
}

func (e EncodingError) Error() string {
	return "encoding error: " + e.Reason
}
