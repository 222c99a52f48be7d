// Package replay models the packets emitted by the replay store and decodes
// their serialized form.
package replay

import (
	"encoding/json"
	"strconv"
)

// FlexInt64 handles fields that arrive as either a number or a string.
// Export jobs re-emit some ids as quoted decimals.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	var i int64
	if err := json.Unmarshal(data, &i); err == nil {
		*f = FlexInt64(i)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "" {
			*f = 0
			return nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			*f = 0
			return nil // Silently ignore unparseable ids
		}
		*f = FlexInt64(i)
		return nil
	}

	*f = 0
	return nil
}

// FlightIntention is the plan announcement embedded in a packet.
type FlightIntention struct {
	PlanID                   FlexInt64 `json:"planId" msgpack:"planId"`
	Indicative               string    `json:"indicative" msgpack:"indicative"`
	AircraftType             string    `json:"aircraftType" msgpack:"aircraftType"`
	Airline                  string    `json:"airline" msgpack:"airline"`
	StartPointIndicative     string    `json:"startPointIndicative" msgpack:"startPointIndicative"`
	EndPointIndicative       string    `json:"endPointIndicative" msgpack:"endPointIndicative"`
	CruiseLevel              int       `json:"cruiseLevel" msgpack:"cruiseLevel"`
	CruiseSpeed              int       `json:"cruiseSpeed" msgpack:"cruiseSpeed"`
	EOBT                     string    `json:"eobt" msgpack:"eobt"`
	ETA                      string    `json:"eta" msgpack:"eta"`
	FlightPlanDate           string    `json:"flightPlanDate" msgpack:"flightPlanDate"`
	CurrentDateTimeOfArrival string    `json:"currentDateTimeOfArrival" msgpack:"currentDateTimeOfArrival"`
	Finished                 bool      `json:"finished" msgpack:"finished"`
	FlightRules              string    `json:"flightRules" msgpack:"flightRules"`
	SSRCode                  string    `json:"ssrCode" msgpack:"ssrCode"`
}

// Kinematic carries the detector metadata of a tracking sample.
type Kinematic struct {
	DetectorSource string `json:"detectorSource" msgpack:"detectorSource"`
}

// RealPathPoint is one observed tracking sample. Latitude and longitude are
// in radians; flightLevel is hundreds of feet; trackSpeed is knots.
type RealPathPoint struct {
	PlanID         FlexInt64  `json:"planId" msgpack:"planId"`
	IndicativeSafe string     `json:"indicativeSafe" msgpack:"indicativeSafe"`
	Latitude       float64    `json:"latitude" msgpack:"latitude"`
	Longitude      float64    `json:"longitude" msgpack:"longitude"`
	FlightLevel    float64    `json:"flightLevel" msgpack:"flightLevel"`
	TrackSpeed     float64    `json:"trackSpeed" msgpack:"trackSpeed"`
	SeqNum         int64      `json:"seqNum" msgpack:"seqNum"`
	Kinematic      *Kinematic `json:"kinematic,omitempty" msgpack:"kinematic,omitempty"`
	Simulating     bool       `json:"simulating" msgpack:"simulating"`
}

// DetectorSource returns the detector name, tolerating a missing kinematic
// block.
func (p *RealPathPoint) DetectorSource() string {
	if p.Kinematic == nil {
		return ""
	}
	return p.Kinematic.DetectorSource
}

// ReplayPath is one decoded packet: the plan intentions and tracking samples
// recorded in one store row, stamped with the row's stored-at instant.
type ReplayPath struct {
	PacketStoredTimestamp int64             `json:"packetStoredTimestamp" msgpack:"packetStoredTimestamp"`
	ListFlightIntention   []FlightIntention `json:"listFlightIntention" msgpack:"listFlightIntention"`
	ListRealPath          []RealPathPoint   `json:"listRealPath" msgpack:"listRealPath"`
}
