package model

type Health struct {
	Status string `json:"status" msgpack:"status"`
}

type Stop struct {
	RaceID uint32 `json:"raceId" msgpack:"raceId"`
	Status string `json:"status" msgpack:"status"`
}

type Error struct {
	Error string `json:"error" msgpack:"error"`
}
