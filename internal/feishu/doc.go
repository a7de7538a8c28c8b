// Package feishu is a thin client for the Feishu open platform REST API:
// bitable records, docx documents, wiki and drive.
//
// The client fetches a tenant access token with the app id and secret and
// caches it until shortly before it expires. Every response envelope with a
// non-zero code is returned as an *APIError.
//
// Example usage:
//
//	client := feishu.NewClient(feishu.Config{
//	    AppID:     cfg.FeishuAppID,
//	    AppSecret: cfg.FeishuAppSecret,
//	}, logger)
//
//	records, err := client.ListAllRecords(ctx, appToken, tableID, feishu.ListOptions{
//	    Filter: `CurrentValue.[状态]="进行中"`,
//	})
package feishu
