// Package runtime builds and owns the concrete inference engines: local
// llama-server subprocesses for chat and embeddings, OpenAI-compatible remote
// chat clients, and in-process whisper contexts for transcription. Engines are
// single-owner; the worker that builds one is the only code that touches it.
package runtime

import (
	"os"
	goruntime "runtime"

	"github.com/rs/zerolog/log"
)

// Device is the compute device an engine runs on, fixed for the engine's life.
type Device string

const (
	DeviceCUDA  Device = "cuda"
	DeviceMetal Device = "metal"
	DeviceCPU   Device = "cpu"
)

// SelectDevice resolves a device policy ("auto", "cuda", "metal", "cpu") to a
// concrete device. Unavailable accelerators log a warning and fall through to
// CPU rather than failing the build.
func SelectDevice(policy string) Device {
	switch policy {
	case "cuda":
		if cudaAvailable() {
			return DeviceCUDA
		}
		log.Warn().Msg("could_not_get_accelerated_device_defaulting_to_cpu")
		return DeviceCPU
	case "metal":
		if metalAvailable() {
			return DeviceMetal
		}
		log.Warn().Msg("could_not_get_accelerated_device_defaulting_to_cpu")
		return DeviceCPU
	case "cpu":
		return DeviceCPU
	default: // auto
		if cudaAvailable() {
			return DeviceCUDA
		}
		if metalAvailable() {
			return DeviceMetal
		}
		return DeviceCPU
	}
}

func cudaAvailable() bool {
	if goruntime.GOOS == "darwin" {
		return false
	}
	// nvidia driver exposes device 0 here on linux
	_, err := os.Stat("/dev/nvidia0")
	return err == nil
}

func metalAvailable() bool {
	return goruntime.GOOS == "darwin" && goruntime.GOARCH == "arm64"
}

// GPULayers returns the llama-server GPU offload flag value for a device.
func (d Device) GPULayers() string {
	if d == DeviceCPU {
		return "0"
	}
	return "99"
}
