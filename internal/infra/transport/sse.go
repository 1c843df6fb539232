package transport

import (
	"fmt"
	"io"

	"github.com/tmaxmax/go-sse"

	"toolgate/internal/domain"
)

// maxEventSize caps one SSE frame; heartbeats and tool results alike stay
// well under this.
const maxEventSize = 10 << 20

// DecodeEventStream reads a text/event-stream body and returns the raw bytes
// of the last data frame that parses as a valid JSON-RPC response. Earlier
// partial or heartbeat frames are discarded. A stream that never yields a
// valid message decodes to domain.ErrInvalidResponse.
func DecodeEventStream(body io.Reader) ([]byte, error) {
	config := &sse.ReadConfig{MaxEventSize: maxEventSize}

	var last []byte
	for event, err := range sse.Read(body, config) {
		if err != nil {
			if last != nil {
				// The stream broke after delivering a usable message;
				// keep it.
				return last, nil
			}
			return nil, domain.E(domain.CodeProtocol, "transport.sse", "read event stream", err)
		}
		data := []byte(event.Data)
		if _, decodeErr := DecodeResponse(data); decodeErr != nil {
			continue
		}
		last = append(last[:0], data...)
	}
	if last == nil {
		return nil, fmt.Errorf("%w: event stream carried no jsonrpc message", domain.ErrInvalidResponse)
	}
	return last, nil
}
