package observability

const (
	MUsecaseRequests         MetricKey = "billing_requests_total"
	MUsecaseDuration         MetricKey = "billing_request_duration_seconds"
	MExternalRequests        MetricKey = "billing_external_requests_total"
	MExternalRequestDuration MetricKey = "billing_external_request_duration_seconds"
	MPurchaseFlowsActive     MetricKey = "billing_purchase_flows_active"
)
