package enums

// OutboxEventType names a domain event queued for publication.
type OutboxEventType string

const (
	EventOrderCreated   OutboxEventType = "order.created"
	EventOrderCancelled OutboxEventType = "order.cancelled"
	EventOrderShipped   OutboxEventType = "order.shipped"
	EventOrderDelivered OutboxEventType = "order.delivered"
	EventPaymentSettled OutboxEventType = "payment.settled"
	EventOfferSold      OutboxEventType = "offer.sold"
	EventUserBlocked    OutboxEventType = "user.blocked"
)

// OutboxAggregateType names the entity a domain event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder OutboxAggregateType = "order"
	AggregateOffer OutboxAggregateType = "offer"
	AggregateUser  OutboxAggregateType = "user"
)
