package events

// NewKafkaPublisherWithWriter lets tests capture messages without a broker.
func NewKafkaPublisherWithWriter(w messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}
