package reporting

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/ObjectivityLtd/PSCI/internal/logfields"
)

// CatalogItem describes one item in the server catalog.
type CatalogItem struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"` // folder, report, dataset, datasource
}

// Warning is a non-fatal message returned by the server when publishing.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DataSourceDefinition is the payload for creating a shared data source.
type DataSourceDefinition struct {
	Name             string `json:"name"`
	Folder           string `json:"folder"`
	Extension        string `json:"extension"`
	ConnectionString string `json:"connection_string"`
	WindowsAuth      bool   `json:"windows_auth"`
	Overwrite        bool   `json:"overwrite"`
}

// DataSetDefinition is the payload for creating a shared dataset.
type DataSetDefinition struct {
	Name       string `json:"name"`
	Folder     string `json:"folder"`
	Definition []byte `json:"definition"`
	DataSource string `json:"data_source,omitempty"`
	Overwrite  bool   `json:"overwrite"`
}

// ReportDefinition is the payload for publishing a report.
type ReportDefinition struct {
	Name       string `json:"name"`
	Folder     string `json:"folder"`
	Definition []byte `json:"definition"`
	Hidden     bool   `json:"hidden"`
	Overwrite  bool   `json:"overwrite"`
}

// ItemReference binds a report placeholder to a shared catalog item.
type ItemReference struct {
	Name string `json:"name"` // placeholder name inside the report
	Path string `json:"path"` // catalog path of the shared item
}

type publishResponse struct {
	Warnings []Warning `json:"warnings"`
}

type listResponse struct {
	Items    []CatalogItem `json:"items"`
	NextPage string        `json:"next_page,omitempty"`
}

// ListChildren returns the direct children of a catalog folder, following the
// server's page tokens until the listing is complete.
func (c *Client) ListChildren(ctx context.Context, folder string) ([]CatalogItem, error) {
	base := "/items?path=" + url.QueryEscape(normalizePath(folder))

	var items []CatalogItem
	page := ""
	for {
		endpoint := base
		if page != "" {
			endpoint += "&page=" + url.QueryEscape(page)
		}
		req, err := c.NewRequest(ctx, "GET", endpoint, nil)
		if err != nil {
			return nil, err
		}

		var resp listResponse
		if err := c.DoRequest(req, &resp); err != nil {
			return nil, err
		}
		items = append(items, resp.Items...)
		if resp.NextPage == "" {
			return items, nil
		}
		page = resp.NextPage
	}
}

// ItemExists checks whether a catalog path exists.
func (c *Client) ItemExists(ctx context.Context, itemPath string) (bool, error) {
	endpoint := "/items/item?path=" + url.QueryEscape(normalizePath(itemPath))
	req, err := c.NewRequest(ctx, "GET", endpoint, nil)
	if err != nil {
		return false, err
	}

	if err := c.DoRequest(req, nil); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// EnsureFolder creates a catalog folder, creating missing parents first.
// An already existing folder is treated as success.
func (c *Client) EnsureFolder(ctx context.Context, folder string) error {
	folder = normalizePath(folder)
	if folder == "/" {
		return nil
	}

	if parent := path.Dir(folder); parent != "/" {
		if err := c.EnsureFolder(ctx, parent); err != nil {
			return err
		}
	}

	req, err := c.NewRequest(ctx, "POST", "/folders", map[string]string{"path": folder})
	if err != nil {
		return err
	}

	if err := c.DoRequest(req, nil); err != nil {
		if IsAlreadyExists(err) {
			slog.Debug("Folder already exists", logfields.Folder(folder))
			return nil
		}
		return err
	}

	slog.Info("Created catalog folder", logfields.Folder(folder))
	return nil
}

// CreateDataSource creates or overwrites a shared data source.
func (c *Client) CreateDataSource(ctx context.Context, def DataSourceDefinition) error {
	def.Folder = normalizePath(def.Folder)
	req, err := c.NewRequest(ctx, "PUT", "/datasources", def)
	if err != nil {
		return err
	}
	return c.DoRequest(req, nil)
}

// CreateDataSet creates or overwrites a shared dataset.
func (c *Client) CreateDataSet(ctx context.Context, def DataSetDefinition) error {
	def.Folder = normalizePath(def.Folder)
	req, err := c.NewRequest(ctx, "PUT", "/datasets", def)
	if err != nil {
		return err
	}
	return c.DoRequest(req, nil)
}

// PublishReport uploads a report definition. Warnings returned by the server
// are not fatal; callers log them.
func (c *Client) PublishReport(ctx context.Context, def ReportDefinition) ([]Warning, error) {
	def.Folder = normalizePath(def.Folder)
	req, err := c.NewRequest(ctx, "PUT", "/reports", def)
	if err != nil {
		return nil, err
	}

	var resp publishResponse
	if err := c.DoRequest(req, &resp); err != nil {
		return nil, err
	}
	return resp.Warnings, nil
}

// SetItemReferences binds a published report to shared datasets and data sources.
func (c *Client) SetItemReferences(ctx context.Context, itemPath string, refs []ItemReference) error {
	if len(refs) == 0 {
		return nil
	}
	payload := map[string]any{
		"path":       normalizePath(itemPath),
		"references": refs,
	}
	req, err := c.NewRequest(ctx, "POST", "/items/references", payload)
	if err != nil {
		return err
	}
	return c.DoRequest(req, nil)
}

// DeleteItem removes a catalog item. Deleting a missing item is not an error.
func (c *Client) DeleteItem(ctx context.Context, itemPath string) error {
	endpoint := "/items?path=" + url.QueryEscape(normalizePath(itemPath))
	req, err := c.NewRequest(ctx, "DELETE", endpoint, nil)
	if err != nil {
		return err
	}

	if err := c.DoRequest(req, nil); err != nil {
		if IsNotFound(err) {
			return nil
		}
		return err
	}
	return nil
}

// ItemPath joins a folder and item name into a catalog path.
func ItemPath(folder, name string) string {
	return path.Join(normalizePath(folder), name)
}

// normalizePath makes catalog paths absolute with forward slashes and no
// trailing slash.
func normalizePath(p string) string {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	if p == "" {
		p = "/"
	}
	return p
}

// String implements fmt.Stringer for log output.
func (w Warning) String() string {
	if w.Code == "" {
		return w.Message
	}
	return fmt.Sprintf("%s: %s", w.Code, w.Message)
}
