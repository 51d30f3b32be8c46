// client/client.go
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"dgit/internal/blob"
	"dgit/internal/commit"
	"dgit/internal/decision"
	"dgit/internal/diff"
	"dgit/internal/errors"
	"dgit/internal/mergerequest"
	"dgit/internal/repository"
	"dgit/internal/tree"
)

// Client talks to a dgit server as one user.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
}

func New(baseURL, userID string) *Client {
	return &Client{
		baseURL: baseURL,
		userID:  userID,
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
	}
}

// do sends body as JSON and decodes a response with the wanted status into
// out. Any other status is returned as *errors.Error.
func (c *Client) do(method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userID != "" {
		req.Header.Set("X-User-ID", c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		apiErr := &errors.Error{}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			return fmt.Errorf("unexpected status: %s", resp.Status)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Repository operations
func (c *Client) CreateRepository(name string) (*repository.Repository, error) {
	var result repository.Repository
	if err := c.do(http.MethodPost, "/repositories", map[string]string{"name": name}, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) GetRepository(id string) (*repository.Repository, error) {
	var result repository.Repository
	if err := c.do(http.MethodGet, "/repositories/"+url.PathEscape(id), nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) DeleteRepository(id string) error {
	return c.do(http.MethodDelete, "/repositories/"+url.PathEscape(id), nil, http.StatusNoContent, nil)
}

// Object operations
func (c *Client) CreateBlob(repositoryID string, content json.RawMessage) (*blob.Blob, error) {
	var result blob.Blob
	path := fmt.Sprintf("/repositories/%s/blobs", url.PathEscape(repositoryID))
	if err := c.do(http.MethodPost, path, map[string]json.RawMessage{"content": content}, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) CreateTree(repositoryID string, entries []tree.Entry) (*tree.Tree, error) {
	var result tree.Tree
	path := fmt.Sprintf("/repositories/%s/trees", url.PathEscape(repositoryID))
	if err := c.do(http.MethodPost, path, map[string][]tree.Entry{"entries": entries}, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CommitTree commits treeID on top of the branch head and advances the branch.
func (c *Client) CommitTree(repositoryID, branchName, treeID, message string) (*commit.Commit, error) {
	var result commit.Commit
	path := fmt.Sprintf("/repositories/%s/branches/%s/commits", url.PathEscape(repositoryID), url.PathEscape(branchName))
	body := map[string]string{"tree_id": treeID, "message": message}
	if err := c.do(http.MethodPost, path, body, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Diff operations
func (c *Client) DiffBranches(repositoryID, base, target string) (*diff.Result, error) {
	var result diff.Result
	query := url.Values{"base": {base}, "target": {target}}
	path := fmt.Sprintf("/repositories/%s/diff/branches?%s", url.PathEscape(repositoryID), query.Encode())
	if err := c.do(http.MethodGet, path, nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Merge request operations
func (c *Client) CreateMergeRequest(repositoryID, sourceBranch, targetBranch, title string) (*mergerequest.MergeRequest, error) {
	var result mergerequest.MergeRequest
	path := fmt.Sprintf("/repositories/%s/merge-requests", url.PathEscape(repositoryID))
	body := map[string]string{
		"source_branch": sourceBranch,
		"target_branch": targetBranch,
		"title":         title,
	}
	if err := c.do(http.MethodPost, path, body, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Merge fast-forwards the target branch of the merge request.
func (c *Client) Merge(mergeRequestID string) (*mergerequest.MergeRequest, error) {
	var result mergerequest.MergeRequest
	path := fmt.Sprintf("/merge-requests/%s/merge", url.PathEscape(mergeRequestID))
	if err := c.do(http.MethodPost, path, nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Decision operations
func (c *Client) Execute(repositoryID, branchName string, input json.RawMessage) (*decision.ExecuteResult, error) {
	var result decision.ExecuteResult
	path := fmt.Sprintf("/repositories/%s/branches/%s/execute", url.PathEscape(repositoryID), url.PathEscape(branchName))
	var body any
	if len(input) > 0 {
		body = input
	}
	if err := c.do(http.MethodPost, path, body, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Simulate(req decision.SimulateRequest) (*decision.SimulateResult, error) {
	var result decision.SimulateResult
	if err := c.do(http.MethodPost, "/decisions/simulate", req, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
