package feishu

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Block is a docx block payload, e.g.
// {"block_type": 2, "text": {"elements": [...]}}
type Block map[string]interface{}

// Document is docx document metadata
type Document struct {
	DocumentID string `json:"document_id"`
	RevisionID int    `json:"revision_id"`
	Title      string `json:"title"`
}

func docPath(doc string) string {
	return "/docx/v1/documents/" + url.PathEscape(doc)
}

// GetDocument returns document metadata
func (c *Client) GetDocument(ctx context.Context, doc string) (*Document, error) {
	var data struct {
		Document Document `json:"document"`
	}
	if err := c.do(ctx, http.MethodGet, docPath(doc), nil, nil, &data); err != nil {
		return nil, err
	}
	return &data.Document, nil
}

// RawContent returns the plain text content of a document
func (c *Client) RawContent(ctx context.Context, doc string) (string, error) {
	var data struct {
		Content string `json:"content"`
	}
	if err := c.do(ctx, http.MethodGet, docPath(doc)+"/raw_content", nil, nil, &data); err != nil {
		return "", err
	}
	return data.Content, nil
}

// ListBlocks lists every block of a document
func (c *Client) ListBlocks(ctx context.Context, doc string) ([]Block, error) {
	var all []Block
	pageToken := ""
	for {
		q := url.Values{"page_size": {strconv.Itoa(MaxPageSize)}}
		if pageToken != "" {
			q.Set("page_token", pageToken)
		}

		var data struct {
			Items     []Block `json:"items"`
			HasMore   bool    `json:"has_more"`
			PageToken string  `json:"page_token"`
		}
		if err := c.do(ctx, http.MethodGet, docPath(doc)+"/blocks", q, nil, &data); err != nil {
			return nil, err
		}
		all = append(all, data.Items...)
		if !data.HasMore || data.PageToken == "" {
			return all, nil
		}
		pageToken = data.PageToken
	}
}

// CreateDocument creates a new document, optionally inside a folder
func (c *Client) CreateDocument(ctx context.Context, title, folderToken string) (*Document, error) {
	body := map[string]interface{}{"title": title}
	if folderToken != "" {
		body["folder_token"] = folderToken
	}

	var data struct {
		Document Document `json:"document"`
	}
	if err := c.do(ctx, http.MethodPost, "/docx/v1/documents", nil, body, &data); err != nil {
		return nil, err
	}
	if data.Document.DocumentID == "" {
		return nil, fmt.Errorf("create document %q: response carried no document_id", title)
	}
	return &data.Document, nil
}

// CreateBlocks inserts children under parent. A negative index appends.
func (c *Client) CreateBlocks(ctx context.Context, doc, parent string, children []Block, index int) error {
	body := map[string]interface{}{"children": children}
	if index >= 0 {
		body["index"] = index
	}
	path := fmt.Sprintf("%s/blocks/%s/children", docPath(doc), url.PathEscape(parent))
	return c.do(ctx, http.MethodPost, path, nil, body, nil)
}

// UpdateBlock patches a block
func (c *Client) UpdateBlock(ctx context.Context, doc, blockID string, update map[string]interface{}) error {
	path := fmt.Sprintf("%s/blocks/%s", docPath(doc), url.PathEscape(blockID))
	return c.do(ctx, http.MethodPatch, path, nil, update, nil)
}

// DeleteBlocks removes the children of parent in [start, end)
func (c *Client) DeleteBlocks(ctx context.Context, doc, parent string, start, end int) error {
	path := fmt.Sprintf("%s/blocks/%s/children/batch_delete", docPath(doc), url.PathEscape(parent))
	body := map[string]interface{}{"start_index": start, "end_index": end}
	return c.do(ctx, http.MethodDelete, path, nil, body, nil)
}
