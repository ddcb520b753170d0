package config

type WorkerKeyStruct struct {
	PersistOutcomesQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistOutcomesQueue: "persist_attempt_outcomes_queue",
}
