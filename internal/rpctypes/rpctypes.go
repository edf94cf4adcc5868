// Package rpctypes contains the request and response types of the control RPC.
package rpctypes

type Node struct {
	ID           string
	Addr         string
	Weight       int
	MissStreak   int
	NextCheckDue Time
	FirstSeen    Time
}

type Bucket struct {
	// Low and High bounds of the distance range in hex.
	Low      string
	High     string
	CanSplit bool
	Nodes    []Node
}

type WorkItem struct {
	// ID is empty for bootstrap nodes.
	ID   string
	Addr string
}

type Task struct {
	QueryType  string
	Key        string
	Protected  bool
	Started    bool
	Removed    bool
	Pending    int
	MaxLength  int
	Dispatched int
	CreatedAt  Time
	StartedAt  Time
	// Seconds since the task was last started.
	RunTime int
	Items   []WorkItem `json:",omitempty"`
}

type Stats struct {
	ID                  string
	Addr                string
	TableSize           int
	Buckets             int
	Tasks               int
	PendingTransactions int
	BootstrapNodes      int
	SentPerSecond       int
	ReceivedPerSecond   int
	Uptime              int
}

type GetStatsRequest struct {
}

type GetStatsResponse struct {
	Stats Stats
}

type GetTableRequest struct {
}

type GetTableResponse struct {
	Buckets []Bucket
}

type ListTasksRequest struct {
	// Lists tasks of all query types if empty.
	QueryType string
}

type ListTasksResponse struct {
	Tasks []Task
}

type GetTaskRequest struct {
	QueryType string
	Key       string
}

type GetTaskResponse struct {
	Task Task
}

type GetCountersRequest struct {
}

type GetCountersResponse struct {
	Counters map[string]interface{}
}

type ControlRequest struct {
	// One of "push", "start", "stop", "remove".
	Action    string
	QueryType string
	// Info hash or node id in hex, base32 or as a magnet link. "ping" for the ping task.
	Key string
}

type ControlResponse struct {
	// One of "applied", "exists", "not_found", "protected", "invalid".
	Result string
}
