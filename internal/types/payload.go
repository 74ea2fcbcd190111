package types

// QueuePayload is the payload handed to the primary, scoper and multimd
// queues. Field names match what the simulation workers expect.
type QueuePayload struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	UUID  string `json:"uuid"`
	JobID string `json:"jobid"`
}

// ConversionPayload is the payload for the pdb2crd conversion queue.
type ConversionPayload struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	UUID        string `json:"uuid"`
	PDBFile     string `json:"pdb_file"`
	PAEPower    string `json:"pae_power"`
	PlddtCutoff string `json:"plddt_cutoff"`
}

// DeletionRequest is the fire-and-forget message consumed by the
// reclaimer. Delivery is at-least-once; processing must be idempotent.
type DeletionRequest struct {
	RecordID string `json:"record_id"`
}
