package output

// Interface compliance for every backend implementation.
var (
	_ Backend = (*AlsaBackend)(nil)
	_ Backend = (*MixerBackend)(nil)
	_ Backend = (*DMABackend)(nil)
	_ Backend = (*WaveBackend)(nil)
	_ Backend = (*NullBackend)(nil)

	_ UnderrunCounter = (*AlsaBackend)(nil)
	_ UnderrunCounter = (*MixerBackend)(nil)

	_ PollTuner = (*MixerBackend)(nil)
	_ PollTuner = (*DMABackend)(nil)

	_ FormatLimiter = (*DMABackend)(nil)
)
