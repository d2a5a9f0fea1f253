package transport

import (
	"context"
	"fmt"
)

// Call sends req through d and decodes the JSON reply into a T. A payload
// implementing Validator is checked first; a failing payload is never sent.
func Call[T any](ctx context.Context, d Doer, req *Request) (T, error) {
	var out T
	resp, err := send(ctx, d, req)
	if err != nil {
		return out, err
	}
	if err := resp.Decode(&out); err != nil {
		return out, fmt.Errorf("transport: decode %s: %w", req.Route(), err)
	}
	return out, nil
}

// CallText sends req through d and returns the reply body as text.
func CallText(ctx context.Context, d Doer, req *Request) (string, error) {
	resp, err := send(ctx, d, req)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// Exec sends req through d and discards the reply body.
func Exec(ctx context.Context, d Doer, req *Request) error {
	_, err := send(ctx, d, req)
	return err
}

func send(ctx context.Context, d Doer, req *Request) (*Response, error) {
	if v, ok := req.Body.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return d.Do(ctx, req)
}
