// Package protocol defines the job session wire format.
//
// A session is a websocket carrying one JSON object per text frame. Every
// object has a "type" field selecting one of:
//
//	client -> server
//	  authenticate  {token}
//	  submit_job    {spec}
//	server -> client
//	  output_chunk  {stream, data, seq}
//	  job_result    {status, reason?, duration_ms}
//	  rejected      {reason, message?}
//
// Output data is raw bytes, base64 encoded by the JSON layer, so workload
// output of any encoding round-trips unchanged. Seq numbers start at 1 and
// increase by one per chunk across both streams, in production order.
package protocol
