package params

const (
	// ChannelTimeoutGranite is a post-Granite constant: Number of L1 blocks between when a channel can be opened and when it must be closed by.
	ChannelTimeoutGranite uint64 = 50
	// MaxSpanBatchElementCount is the maximum number of blocks, transactions in total,
	// or transaction per block allowed in a span batch.
	MaxSpanBatchElementCount uint64 = 10_000_000
	// SequencerDriftFjord is the Fjord constant for the max sequencer drift, in seconds.
	SequencerDriftFjord uint64 = 1800
)
