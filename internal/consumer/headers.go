package consumer

import "github.com/segmentio/kafka-go"

const (
	idempotencyKeyHeader   = "X-Idempotency-Key"
	exceptionClassHeader   = "X-Exception-Class"
	exceptionMessageHeader = "X-Exception-Message"
)

func headerValue(headers []kafka.Header, key string) (string, bool) {
	// kafka-go appends headers in read order; the last write for a given
	// key wins, mirroring Headers.lastHeader in the source's Kafka client.
	for i := len(headers) - 1; i >= 0; i-- {
		if headers[i].Key == key {
			return string(headers[i].Value), true
		}
	}
	return "", false
}

func setHeader(headers []kafka.Header, key, value string) []kafka.Header {
	return append(headers, kafka.Header{Key: key, Value: []byte(value)})
}
