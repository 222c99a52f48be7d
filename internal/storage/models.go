// Package storage provides the document store for fused flight data and the
// clients for the two upstream source stores.
package storage

import "errors"

// ErrDeserialize marks a record whose stored object graph cannot be decoded.
// The prediction ingester maps this to "not found" for the requesting plan.
var ErrDeserialize = errors.New("could not deserialize")

// Route element types. Densification adds the two interpolated kinds.
const (
	ElementAerodrome          = "AERODROME"
	ElementWaypoint           = "WAYPOINT"
	ElementNavaid             = "NAVAID"
	ElementInterpolated       = "INTERPOLATED"
	ElementInterpolatedLinear = "INTERPOLATED_LINEAR"
)

// Audited operations.
const (
	OpProcessRealData      = "PROCESS_REAL_DATA"
	OpSyncPredictedData    = "SYNC_PREDICTED_DATA"
	OpDensifyPredictedData = "DENSIFY_PREDICTED_DATA"
	OpPunctualityAnalysis  = "PUNCTUALITY_ANALYSIS"
	OpTrajectoryAccuracy   = "TRAJECTORY_ACCURACY"
	OpCleanupDuplicateData = "CLEANUP_DUPLICATE_DATA"
	OpCleanupHistory       = "CLEANUP_HISTORY"
)

// Audit record statuses. A record is created IN_PROGRESS and moved exactly
// once to one of the terminal values.
const (
	StatusInProgress     = "IN_PROGRESS"
	StatusSuccess        = "SUCCESS"
	StatusPartialSuccess = "PARTIAL_SUCCESS"
	StatusFailure        = "FAILURE"
)

// TrackingPoint is one observed sample on a flight. Coordinates are radians
// (as broadcast); flightLevel is hundreds of feet; timestamp is the packet
// stored-at instant in Unix milliseconds.
type TrackingPoint struct {
	Timestamp      int64   `json:"timestamp"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	FlightLevel    float64 `json:"flightLevel"`
	Speed          float64 `json:"speed"`
	IndicativeSafe string  `json:"indicativeSafe"`
	DetectorSource string  `json:"detectorSource,omitempty"`
}

// Flight is the fused per-plan document: the plan intention plus every
// tracking point assigned to it.
type Flight struct {
	PlanID                   int64           `json:"planId"`
	Indicative               string          `json:"indicative"`
	TrackID                  string          `json:"trackId,omitempty"`
	AircraftType             string          `json:"aircraftType,omitempty"`
	Airline                  string          `json:"airline,omitempty"`
	StartPointIndicative     string          `json:"startPointIndicative,omitempty"`
	EndPointIndicative       string          `json:"endPointIndicative,omitempty"`
	CruiseLevel              int             `json:"cruiseLevel,omitempty"`
	CruiseSpeed              int             `json:"cruiseSpeed,omitempty"`
	EOBT                     string          `json:"eobt,omitempty"`
	ETA                      string          `json:"eta,omitempty"`
	FlightPlanDate           string          `json:"flightPlanDate,omitempty"`
	CurrentDateTimeOfArrival string          `json:"currentDateTimeOfArrival,omitempty"`
	Finished                 bool            `json:"finished"`
	FlightRules              string          `json:"flightRules,omitempty"`
	SSRCode                  string          `json:"ssrCode,omitempty"`
	HasTrackingData          bool            `json:"hasTrackingData"`
	TotalTrackingPoints      int             `json:"totalTrackingPoints"`
	LastPacketTimestamp      int64           `json:"lastPacketTimestamp,omitempty"`
	TrackingPoints           []TrackingPoint `json:"trackingPoints"`
}

// RouteElement is one vertex of a predicted route. Coordinates are degrees;
// eetMinutes is minutes since route start.
type RouteElement struct {
	Indicative          string  `json:"indicative,omitempty"`
	ElementType         string  `json:"elementType"`
	Latitude            float64 `json:"latitude"`
	Longitude           float64 `json:"longitude"`
	LevelMeters         float64 `json:"levelMeters"`
	Altitude            float64 `json:"altitude"`
	SpeedMeterPerSecond float64 `json:"speedMeterPerSecond"`
	EetMinutes          float64 `json:"eetMinutes"`
	SequenceNumber      int     `json:"sequenceNumber"`
	Interpolated        bool    `json:"interpolated"`
	CoordinateText      string  `json:"coordinateText,omitempty"`
}

// RouteSegment joins two route elements by id.
type RouteSegment struct {
	ID         int64   `json:"id"`
	Distance   float64 `json:"distance"`
	ElementAID int64   `json:"elementAId"`
	ElementBID int64   `json:"elementBId"`
}

// PredictedFlight is the prediction document extracted from the historic
// store, keyed by instanceId (which equals the matching Flight's planId).
type PredictedFlight struct {
	InstanceID               int64          `json:"instanceId"`
	RouteID                  int64          `json:"routeId,omitempty"`
	Indicative               string         `json:"indicative,omitempty"`
	AircraftType             string         `json:"aircraftType,omitempty"`
	Airline                  string         `json:"airline,omitempty"`
	StartPointIndicative     string         `json:"startPointIndicative,omitempty"`
	EndPointIndicative       string         `json:"endPointIndicative,omitempty"`
	CruiseLevel              int            `json:"cruiseLevel,omitempty"`
	CruiseSpeed              int            `json:"cruiseSpeed,omitempty"`
	Time                     string         `json:"time,omitempty"`
	FlightPlanDate           string         `json:"flightPlanDate,omitempty"`
	CurrentDateTimeOfArrival string         `json:"currentDateTimeOfArrival,omitempty"`
	TotalRouteElements       int            `json:"totalRouteElements"`
	RouteElements            []RouteElement `json:"routeElements"`
	RouteSegments            []RouteSegment `json:"routeSegments"`
}

// ProcessingRecord is one audit-log entry for an invoked operation.
type ProcessingRecord struct {
	ID                string `json:"id"`
	Timestamp         string `json:"timestamp"`
	Operation         string `json:"operation"`
	Endpoint          string `json:"endpoint"`
	Status            string `json:"status"`
	DurationMs        int64  `json:"durationMs"`
	RecordsProcessed  int    `json:"recordsProcessed"`
	RecordsWithErrors int    `json:"recordsWithErrors"`
	Details           string `json:"details,omitempty"`
	ErrorMessage      string `json:"errorMessage,omitempty"`
	RequestParameters string `json:"requestParameters,omitempty"`
}

// SearchField selects the column for flight search queries.
type SearchField string

const (
	SearchByPlanID      SearchField = "planId"
	SearchByIndicative  SearchField = "indicative"
	SearchByOrigin      SearchField = "origin"
	SearchByDestination SearchField = "destination"
)
