package results

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Response is the SPARQL 1.1 query results JSON document. Endpoints reporting a failure
// send {"message": ..., "code": ...} without head, these fields are kept too.
type Response struct {
	Head    *Head           `json:"head,omitempty"`
	Results *Bindings       `json:"results,omitempty"`
	Boolean *bool           `json:"boolean,omitempty"`
	Message string          `json:"message,omitempty"`
	Code    json.RawMessage `json:"code,omitempty"`
}

// Head lists result variables in declared order
type Head struct {
	Vars []string `json:"vars"`
	Link []string `json:"link,omitempty"`
}

// Bindings holds result rows
type Bindings struct {
	Bindings []map[string]Binding `json:"bindings"`
}

// Binding is a single variable value in a row
type Binding struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Datatype string `json:"datatype,omitempty"`
	Lang     string `json:"xml:lang,omitempty"`
}

// Decode reads the response document
func Decode(r io.Reader) (*Response, error) {
	res := &Response{}
	if err := json.NewDecoder(r).Decode(res); err != nil {
		return nil, fmt.Errorf("can't decode sparql response: %w", err)
	}
	return res, nil
}

// Ask returns the result of an ASK query
func (r *Response) Ask() (bool, error) {
	if err := r.check(); err != nil {
		return false, err
	}
	if r.Boolean == nil {
		return false, ErrNotBoolean
	}
	return *r.Boolean, nil
}

// Rows returns the number of result rows
func (r *Response) Rows() int {
	if r.Results == nil {
		return 0
	}
	return len(r.Results.Bindings)
}

// check classifies empty and endpoint error documents
func (r *Response) check() error {
	if r.Head == nil && r.Results == nil && r.Boolean == nil && r.Message == "" && len(r.Code) == 0 {
		return ErrNotFound
	}
	if r.Head == nil {
		return &ExecutionError{Message: r.Message, Code: r.code()}
	}
	return nil
}

// code returns error code as text, endpoints send it either as a number or a string
func (r *Response) code() string {
	var s string
	if err := json.Unmarshal(r.Code, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(r.Code))
}
