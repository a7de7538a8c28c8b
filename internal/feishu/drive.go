package feishu

import (
	"context"
	"net/http"
	"net/url"
)

// WikiSpace is a knowledge base
type WikiSpace struct {
	SpaceID     string `json:"space_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// WikiNode is a knowledge base node
type WikiNode struct {
	SpaceID         string `json:"space_id"`
	NodeToken       string `json:"node_token"`
	ObjToken        string `json:"obj_token"`
	ObjType         string `json:"obj_type"`
	ParentNodeToken string `json:"parent_node_token"`
	Title           string `json:"title"`
	HasChild        bool   `json:"has_child"`
}

// File is a drive entry
type File struct {
	Token        string `json:"token"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	ParentToken  string `json:"parent_token"`
	URL          string `json:"url"`
	CreatedTime  string `json:"created_time"`
	ModifiedTime string `json:"modified_time"`
}

// ListWikiSpaces lists the knowledge bases visible to the app
func (c *Client) ListWikiSpaces(ctx context.Context) ([]WikiSpace, error) {
	var data struct {
		Items []WikiSpace `json:"items"`
	}
	q := url.Values{"page_size": {"50"}}
	if err := c.do(ctx, http.MethodGet, "/wiki/v2/spaces", q, nil, &data); err != nil {
		return nil, err
	}
	return data.Items, nil
}

// GetWikiNode resolves a node token
func (c *Client) GetWikiNode(ctx context.Context, token string) (*WikiNode, error) {
	var data struct {
		Node WikiNode `json:"node"`
	}
	q := url.Values{"token": {token}}
	if err := c.do(ctx, http.MethodGet, "/wiki/v2/spaces/get_node", q, nil, &data); err != nil {
		return nil, err
	}
	return &data.Node, nil
}

// ListWikiNodes lists child nodes of a space, or of parent when given
func (c *Client) ListWikiNodes(ctx context.Context, spaceID, parent string) ([]WikiNode, error) {
	var data struct {
		Items []WikiNode `json:"items"`
	}
	q := url.Values{"page_size": {"50"}}
	if parent != "" {
		q.Set("parent_node_token", parent)
	}
	path := "/wiki/v2/spaces/" + url.PathEscape(spaceID) + "/nodes"
	if err := c.do(ctx, http.MethodGet, path, q, nil, &data); err != nil {
		return nil, err
	}
	return data.Items, nil
}

// ListFiles lists a drive folder (the root folder when token is empty)
func (c *Client) ListFiles(ctx context.Context, folderToken string) ([]File, error) {
	var data struct {
		Files []File `json:"files"`
	}
	q := url.Values{"page_size": {"50"}}
	if folderToken != "" {
		q.Set("folder_token", folderToken)
	}
	if err := c.do(ctx, http.MethodGet, "/drive/v1/files", q, nil, &data); err != nil {
		return nil, err
	}
	return data.Files, nil
}

// CreateFolder creates a drive folder and returns its token
func (c *Client) CreateFolder(ctx context.Context, name, parentToken string) (string, error) {
	var data struct {
		Token string `json:"token"`
		URL   string `json:"url"`
	}
	body := map[string]interface{}{"name": name, "folder_token": parentToken}
	if err := c.do(ctx, http.MethodPost, "/drive/v1/files/create_folder", nil, body, &data); err != nil {
		return "", err
	}
	return data.Token, nil
}
