package metricflow

import (
	collectorpkg "github.com/drblury/metricflow/collector"
	emitterpkg "github.com/drblury/metricflow/emitter"
	facadepkg "github.com/drblury/metricflow/facade"
	loggingpkg "github.com/drblury/metricflow/logging"
	transportpkg "github.com/drblury/metricflow/transport"
	wirepkg "github.com/drblury/metricflow/wire"
)

type (
	// Wire model
	MetricKind      = wirepkg.MetricKind
	MetricMetadata  = wirepkg.MetricMetadata
	MetricData      = wirepkg.MetricData
	MetricEvent     = wirepkg.MetricEvent
	MetricOperation = wirepkg.MetricOperation
	LabelSet        = wirepkg.LabelSet

	// Facade boundary
	Recorder  = facadepkg.Recorder
	Counter   = facadepkg.Counter
	Gauge     = facadepkg.Gauge
	Histogram = facadepkg.Histogram
	Unit      = facadepkg.Unit

	// Collector and emitter
	Collector       = collectorpkg.Collector
	CollectorConfig = collectorpkg.Config
	Emitter         = emitterpkg.Registry
	EmitterConfig   = emitterpkg.Config

	// Transport contracts
	Transport             = transportpkg.Listener
	TransportConn         = transportpkg.Conn
	TransportSender       = transportpkg.Sender
	TransportHandle       = transportpkg.Handle
	TransportCapabilities = transportpkg.Capabilities
	TransportRegistry     = transportpkg.Registry

	// Logging
	Logger    = loggingpkg.Logger
	LogFields = loggingpkg.Fields
)

const (
	KindCounter   = wirepkg.KindCounter
	KindGauge     = wirepkg.KindGauge
	KindHistogram = wirepkg.KindHistogram
)

var (
	NewCollector     = collectorpkg.New
	NewPipeCollector = collectorpkg.NewPipe
	NewSocketEmitter = emitterpkg.NewSocket
	NewPipeEmitter   = emitterpkg.NewPipe

	InstallRecorder   = facadepkg.Install
	InstalledRecorder = facadepkg.Installed
	ParseUnit         = facadepkg.ParseUnit

	EncodeEvent = wirepkg.Encode
	EncodeFrame = wirepkg.EncodeFrame
	DecodeFrame = wirepkg.Decode

	NewZapLogger  = loggingpkg.NewZapLogger
	NewSlogLogger = loggingpkg.NewSlogLogger
	NewNopLogger  = loggingpkg.NewNopLogger
)
