package config

type WorkerKeyStruct struct {
	GenerateFeedbackQueue string
	PersistIntegrityQueue string
}

var WorkerKey = &WorkerKeyStruct{
	GenerateFeedbackQueue: "generate_feedback_queue",
	PersistIntegrityQueue: "persist_integrity_queue",
}
