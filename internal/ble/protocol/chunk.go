// Package protocol splits ESC/POS command streams into BLE write units.
package protocol

// MaxSafeChunk is the largest write that fits the default 23 byte ATT
// MTU after the 3 byte header.
const MaxSafeChunk = 20

// Count returns the number of chunks of at most size bytes needed for n
// bytes. It returns 0 when n or size is not positive.
func Count(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// Chunk splits data into consecutive slices of at most size bytes. The
// slices alias data; concatenated in order they reproduce it exactly.
// Returns nil for empty data or a non-positive size.
func Chunk(data []byte, size int) [][]byte {
	n := Count(len(data), size)
	if n == 0 {
		return nil
	}
	chunks := make([][]byte, 0, n)
	for len(data) > 0 {
		end := min(size, len(data))
		chunks = append(chunks, data[:end:end])
		data = data[end:]
	}
	return chunks
}
