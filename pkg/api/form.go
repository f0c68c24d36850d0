package api

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
)

// Form is a multipart request body. A request body is either JSON or a Form,
// never both; the client takes the content type (with its generated boundary)
// from the form itself.
type Form struct {
	buf    bytes.Buffer
	writer *multipart.Writer
	err    error
}

func NewForm() *Form {
	f := &Form{}
	f.writer = multipart.NewWriter(&f.buf)
	return f
}

// AddField appends a plain text field.
func (f *Form) AddField(name, value string) *Form {
	if f.err != nil {
		return f
	}
	f.err = f.writer.WriteField(name, value)
	return f
}

// AddFile appends a file part read from r.
func (f *Form) AddFile(field, filename string, r io.Reader) *Form {
	if f.err != nil {
		return f
	}
	part, err := f.writer.CreateFormFile(field, filename)
	if err != nil {
		f.err = err
		return f
	}
	if _, err := io.Copy(part, r); err != nil {
		f.err = err
	}
	return f
}

// encode finalizes the multipart body and returns it with its content type.
func (f *Form) encode() (io.Reader, string, error) {
	if f.err != nil {
		return nil, "", fmt.Errorf("failed to build form: %w", f.err)
	}
	if err := f.writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize form: %w", err)
	}
	return &f.buf, f.writer.FormDataContentType(), nil
}
