package domain

const (
	DefaultCollectionBatchSize = 200
	MaxCollectionBatchSize     = 200
	DefaultBulkBatchSize       = 10000
	MaxBulkBatchSize           = 10000
)

// ClampBatchSize bounds a requested batch size to the protocol maximum.
// Non positive sizes get the protocol default.
func ClampBatchSize(mode LoadMode, size int) int {
	def, maxSize := DefaultCollectionBatchSize, MaxCollectionBatchSize
	if mode == LoadModeBulk {
		def, maxSize = DefaultBulkBatchSize, MaxBulkBatchSize
	}
	if size <= 0 {
		return def
	}
	if size > maxSize {
		return maxSize
	}
	return size
}

// SplitBatches partitions records into order preserving batches,
// batch i holding records [i*size, (i+1)*size).
func SplitBatches(records []PreparedRecord, size int) []*Batch {
	if size <= 0 {
		size = DefaultCollectionBatchSize
	}
	batches := make([]*Batch, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		batches = append(batches, &Batch{
			BatchNumber: len(batches),
			Records:     records[start:end:end],
		})
	}
	return batches
}

// RecordIndex is the position of a batch record in the prepared data.
func RecordIndex(batchNumber, batchSize, offset int) int {
	return batchNumber*batchSize + offset
}

// Snapshot returns fresh progress frames for all batches.
func Snapshot(batches []*Batch) []BatchStatus {
	out := make([]BatchStatus, len(batches))
	for i, b := range batches {
		out[i] = b.Status()
	}
	return out
}
