package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/chuangyeshuo/mcprapi/internal/auth"
)

// RunStdio handles MCP requests over stdin/stdout using JSON-RPC line-delimited
// messages. headers, when non-nil, are injected into every invocation context
// in place of HTTP request headers.
func (h *Handler) RunStdio(ctx context.Context, in io.Reader, out io.Writer, headers auth.Headers) error {
	scanner := bufio.NewScanner(in)
	// Allow larger requests in stdio mode (up to 4 MiB per message).
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	writer := bufio.NewWriter(out)
	defer writer.Flush()

	callCtx := ctx
	if headers != nil {
		callCtx = auth.WithHeaders(ctx, headers)
	}
	meta := callMeta{Transport: TransportStdio}

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		resp := h.handlePayload(callCtx, []byte(line), meta)
		if resp == nil {
			continue
		}
		if err := writeRPC(writer, resp); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdio request: %w", err)
	}
	return nil
}

func writeRPC(w *bufio.Writer, resp any) error {
	encoded, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encoding rpc response: %w", err)
	}
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("writing rpc response: %w", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing rpc newline: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing rpc response: %w", err)
	}
	return nil
}
