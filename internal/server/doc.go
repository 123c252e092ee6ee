// Package server exposes the coordinator over two transports.
//
// # Stdio Protocol
//
// Serve speaks action-tagged JSON, one message per line:
//   - Input: {"id": ..., "action": "listRecords", "params": {...}}
//   - Output: {"id": ..., "success": true, "result": ...}
//     or {"id": ..., "success": false, "error": {"code", "message", "details"}}
//
// Supported actions:
//   - captureFullFrame: full viewport raster, optionally cropped to bounds
//   - captureRegion: capture bounds through the tier chain and store it
//   - appendRecord: store an image produced elsewhere
//   - listRecords, getRecord: read the store
//   - updateRecordText, deleteRecord, clearRecords: mutate the store
//   - selectionStart, selectionPointer, selectionCancel: drive the selector
//   - ping: health check
//
// After every committed mutation the server writes an unsolicited
// notification:
//
//	{"action": "storeChanged", "params": {"records": [...], "version": 7}}
//
// Updates and deletes of an absent id succeed with updated/deleted false.
//
// # HTTP
//
// Handler mounts the same operations as REST routes on a chi router, with
// storeChanged delivered as server-sent events on GET /events. Error
// codes map to HTTP statuses (RECORD_NOT_FOUND is 404, SELECTION_TOO_SMALL
// and INVALID_REQUEST are 400, and so on).
//
// # Usage
//
//	srv := server.New(coord, logger)
//	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil {
//	    log.Fatal(err)
//	}
package server
