package gocvcommon

import (
	"errors"
	"fmt"

	"github.com/Robogera/detectdemo/pkg/enums"
	"gocv.io/x/gocv"
)

var (
	ERR_CANT_SET_TARGET  = errors.New("Can't set target")
	ERR_CANT_SET_BACKEND = errors.New("Can't set backend")
)

func GetOutputLayerNames(net *gocv.Net) []string {
	var output_layer_names []string
	for _, i := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(i)
		name := layer.GetName()
		if name != "_input" {
			output_layer_names = append(output_layer_names, name)
		}
	}
	return output_layer_names
}

func BackendType(backend enums.Backend) gocv.NetBackendType {
	switch backend {
	case enums.BackendOpenCV:
		return gocv.NetBackendOpenCV
	case enums.BackendOpenVINO:
		return gocv.NetBackendOpenVINO
	case enums.BackendCUDA:
		return gocv.NetBackendCUDA
	default:
		return gocv.NetBackendDefault
	}
}

func TargetType(target enums.Target) gocv.NetTargetType {
	switch target {
	case enums.TargetGPU:
		// OpenCL
		return gocv.NetTargetFP32
	case enums.TargetVPU:
		return gocv.NetTargetVPU
	case enums.TargetCUDA:
		return gocv.NetTargetCUDA
	default:
		return gocv.NetTargetCPU
	}
}

// Empty or unknown values fall back to default backend on cpu
func SetPreferable(net *gocv.Net, backend, target string) error {
	be := enums.BackendDefault
	if parsed := enums.Backends.Parse(backend); parsed != nil {
		be = *parsed
	}
	tg := enums.TargetCPU
	if parsed := enums.Targets.Parse(target); parsed != nil {
		tg = *parsed
	}
	if err := net.SetPreferableBackend(BackendType(be)); err != nil {
		return fmt.Errorf("%w %s: %w", ERR_CANT_SET_BACKEND, be.Value, err)
	}
	if err := net.SetPreferableTarget(TargetType(tg)); err != nil {
		return fmt.Errorf("%w %s: %w", ERR_CANT_SET_TARGET, tg.Value, err)
	}
	return nil
}
