// Package rpcclient calls the control RPC of a running crawler.
package rpcclient

import (
	"github.com/cenkalti/dhtcrawler/internal/rpctypes"
	"github.com/powerman/rpc-codec/jsonrpc2"
)

// Client of the control RPC.
type Client struct {
	client *jsonrpc2.Client
}

// New returns a Client that sends requests to url over HTTP.
func New(url string) *Client {
	return &Client{client: jsonrpc2.NewHTTPClient(url)}
}

// Close the client.
func (c *Client) Close() error {
	return c.client.Close()
}

// ServerVersion returns the version of the crawler.
func (c *Client) ServerVersion() (string, error) {
	var reply string
	return reply, c.client.Call("DHT.Version", struct{}{}, &reply)
}

// GetStats returns the stats of the node.
func (c *Client) GetStats() (*rpctypes.Stats, error) {
	var reply rpctypes.GetStatsResponse
	return &reply.Stats, c.client.Call("DHT.GetStats", rpctypes.GetStatsRequest{}, &reply)
}

// GetTable returns the routing table.
func (c *Client) GetTable() ([]rpctypes.Bucket, error) {
	var reply rpctypes.GetTableResponse
	return reply.Buckets, c.client.Call("DHT.GetTable", rpctypes.GetTableRequest{}, &reply)
}

// ListTasks returns the tasks of a query type, or all tasks if queryType is empty.
func (c *Client) ListTasks(queryType string) ([]rpctypes.Task, error) {
	args := rpctypes.ListTasksRequest{QueryType: queryType}
	var reply rpctypes.ListTasksResponse
	return reply.Tasks, c.client.Call("DHT.ListTasks", args, &reply)
}

// GetTask returns a task including its pending nodes.
func (c *Client) GetTask(queryType, key string) (*rpctypes.Task, error) {
	args := rpctypes.GetTaskRequest{QueryType: queryType, Key: key}
	var reply rpctypes.GetTaskResponse
	return &reply.Task, c.client.Call("DHT.GetTask", args, &reply)
}

// GetCounters returns the message counters.
func (c *Client) GetCounters() (map[string]interface{}, error) {
	var reply rpctypes.GetCountersResponse
	return reply.Counters, c.client.Call("DHT.GetCounters", rpctypes.GetCountersRequest{}, &reply)
}

// Control applies action to a task and returns the result.
func (c *Client) Control(action, queryType, key string) (string, error) {
	args := rpctypes.ControlRequest{Action: action, QueryType: queryType, Key: key}
	var reply rpctypes.ControlResponse
	return reply.Result, c.client.Call("DHT.Control", args, &reply)
}
