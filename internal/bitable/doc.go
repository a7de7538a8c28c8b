// Package bitable implements bulk operations on Feishu bitable tables:
// chunked batch create and update, cross-table joins, JSON snapshots and
// per-field statistics.
//
// Batch calls are paced with a token-bucket limiter. A failing chunk does not
// stop the remaining chunks; it is reported in BatchResult.Errors.
//
// Example usage:
//
//	engine := bitable.NewEngine(client, logger)
//
//	records, err := bitable.LoadRecords("stores.csv")
//	if err != nil {
//	    return err
//	}
//
//	res, err := engine.BatchCreate(ctx, appToken, tableID, records, false)
package bitable
