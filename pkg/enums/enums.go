package enums

// declaration of various enums for
// user data validation purposes

import (
	"github.com/orsinium-labs/enum"
)

// Input modality the user picked in the sidebar
type Source enum.Member[string]

var (
	src = enum.NewBuilder[string, Source]()

	SourceImage   = src.Add(Source{"image"})
	SourceVideo   = src.Add(Source{"video"})
	SourceYouTube = src.Add(Source{"youtube"})
	SourceWebcam  = src.Add(Source{"webcam"})
	SourceStream  = src.Add(Source{"stream"})

	Sources = src.Enum()
)

type ModelFormat enum.Member[string]

var (
	mf = enum.NewBuilder[string, ModelFormat]()

	ModelONNX     = mf.Add(ModelFormat{"onnx"})
	ModelOpenVINO = mf.Add(ModelFormat{"openvino"})
	ModelCaffe    = mf.Add(ModelFormat{"caffe"})

	ModelFormats = mf.Enum()
)

// Tracker presets are selected by the name of
// their yaml file, same as ultralytics does it
type TrackerPreset enum.Member[string]

var (
	tp = enum.NewBuilder[string, TrackerPreset]()

	TrackerByteTrack = tp.Add(TrackerPreset{"bytetrack.yaml"})
	TrackerBoTSORT   = tp.Add(TrackerPreset{"botsort.yaml"})

	TrackerPresets = tp.Enum()
)

type Backend enum.Member[string]

var (
	be = enum.NewBuilder[string, Backend]()

	BackendDefault  = be.Add(Backend{"default"})
	BackendOpenCV   = be.Add(Backend{"opencv"})
	BackendOpenVINO = be.Add(Backend{"openvino"})
	BackendCUDA     = be.Add(Backend{"cuda"})

	Backends = be.Enum()
)

type Target enum.Member[string]

var (
	tg = enum.NewBuilder[string, Target]()

	TargetCPU  = tg.Add(Target{"cpu"})
	TargetGPU  = tg.Add(Target{"gpu"})
	TargetVPU  = tg.Add(Target{"vpu"})
	TargetCUDA = tg.Add(Target{"cuda"})

	Targets = tg.Enum()
)

type LoggingLevel enum.Member[string]

var (
	ll = enum.NewBuilder[string, LoggingLevel]()

	LoggingLevelDebug = ll.Add(LoggingLevel{"debug"})
	LoggingLevelInfo  = ll.Add(LoggingLevel{"info"})
	LoggingLevelWarn  = ll.Add(LoggingLevel{"warn"})
	LoggingLevelError = ll.Add(LoggingLevel{"error"})

	LoggingLevels = ll.Enum()
)

// Severity of a message shown to the user
type MessageLevel enum.Member[string]

var (
	ml = enum.NewBuilder[string, MessageLevel]()

	MessageSuccess = ml.Add(MessageLevel{"success"})
	MessageInfo    = ml.Add(MessageLevel{"info"})
	MessageWarning = ml.Add(MessageLevel{"warning"})
	MessageError   = ml.Add(MessageLevel{"error"})
	MessageDetails = ml.Add(MessageLevel{"details"})

	MessageLevels = ml.Enum()
)
