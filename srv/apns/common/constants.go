package common

// Status codes for the binary API
const (
	Status0Success            = 0
	Status1ProcessingError    = 1
	Status2MissingDeviceToken = 2
	Status3MissingTopic       = 3
	Status4MissingPayload     = 4
	Status5InvalidTokenSize   = 5
	Status6InvalidTopicSize   = 6
	Status7InvalidPayloadSize = 7
	Status8Unsubscribe        = 8
	Status10Shutdown          = 10
)

// Well known APNS endpoints. The feedback host for a custom gateway address
// is derived from the gateway host.
const (
	ProductionGateway  = "gateway.push.apple.com:2195"
	SandboxGateway     = "gateway.sandbox.push.apple.com:2195"
	ProductionFeedback = "feedback.push.apple.com:2196"
	SandboxFeedback    = "feedback.sandbox.push.apple.com:2196"
)
