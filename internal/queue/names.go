package queue

// Canonical queue names. One queue per job family; workers and this
// backend must agree on these.
const (
	QueuePrimary    = "bilbomd"
	QueueConversion = "pdb2crd"
	QueueScoper     = "bilbomd-scoper"
	QueueMulti      = "multimd"
	QueueDeletion   = "delete-bilbomd"
	QueueWebhooks   = "webhooks"
)

// KnownQueues lists every queue this backend talks to, for the admin
// surface.
func KnownQueues() []string {
	return []string{
		QueuePrimary,
		QueueConversion,
		QueueScoper,
		QueueMulti,
		QueueDeletion,
		QueueWebhooks,
	}
}
