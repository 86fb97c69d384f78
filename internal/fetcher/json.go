package fetcher

import (
	"context"
	"encoding/json"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// arrayKeys are the wrapper fields search providers use around their
// result array.
var arrayKeys = map[string]bool{
	"articles": true,
	"results":  true,
	"data":     true,
	"items":    true,
}

// DecodeJSONArray decodes a JSON array streaming, sending each element to a channel.
// Accepts a bare array [{...},{...}] or an object wrapping it under one of
// articles, results, data or items. Both channels are closed when processing
// completes. An element that is valid JSON but does not fit T is skipped;
// a syntax error stops the stream after the elements already sent.
func DecodeJSONArray[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := json.NewDecoder(r)

		if err := seekArray(decoder); err != nil {
			if err == io.EOF {
				return
			}
			errCh <- err
			return
		}

		for decoder.More() {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}

			var raw json.RawMessage
			if err := decoder.Decode(&raw); err != nil {
				errCh <- eris.Wrap(err, "json: decode element")
				return
			}
			var item T
			if err := json.Unmarshal(raw, &item); err != nil {
				zap.L().Debug("json: skipping element", zap.Error(err))
				continue
			}

			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}
		}

		if _, err := decoder.Token(); err != nil && err != io.EOF {
			errCh <- eris.Wrap(err, "json: read closing token")
		}
	}()

	return outCh, errCh
}

// seekArray advances the decoder to just inside the result array.
func seekArray(decoder *json.Decoder) error {
	tok, err := decoder.Token()
	if err != nil {
		if err == io.EOF {
			return err
		}
		return eris.Wrap(err, "json: read opening token")
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return eris.Errorf("json: expected '[' or '{', got %v", tok)
	}
	if delim == '[' {
		return nil
	}
	if delim != '{' {
		return eris.Errorf("json: expected '[' or '{', got %v", tok)
	}

	for decoder.More() {
		keyTok, err := decoder.Token()
		if err != nil {
			return eris.Wrap(err, "json: read key")
		}
		key, _ := keyTok.(string)
		if arrayKeys[key] {
			tok, err := decoder.Token()
			if err != nil {
				return eris.Wrap(err, "json: read array token")
			}
			if d, ok := tok.(json.Delim); ok && d == '[' {
				return nil
			}
			return eris.Errorf("json: field %q is not an array", key)
		}
		var skip json.RawMessage
		if err := decoder.Decode(&skip); err != nil {
			return eris.Wrap(err, "json: skip field")
		}
	}
	return eris.New("json: no result array in object")
}
