//go:build !windows

package policy

// ReadHardeningState is a no-op off Windows; fixture replay and tests run
// with Collected=false so the evaluation stays quiet.
func ReadHardeningState() HardeningState {
	return HardeningState{}
}

func systemTool(name string) string {
	return name
}
