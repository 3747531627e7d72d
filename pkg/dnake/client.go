package dnake

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	PATH_IOT_INFO    = "/smart/iot.info"
	PATH_DEVICE_LIST = "/smart/speDev.info"
	PATH_ROUTE       = "/route.cgi?api=request"
)

var (
	// ErrTransport covers network errors, non 2xx responses and undecodable bodies.
	ErrTransport = errors.New("dnake: transport error")
	// ErrRejected is returned when the gateway answers with a result other than "ok".
	ErrRejected = errors.New("dnake: request rejected")
	// ErrNotBound is returned when posting before the iot binding is known.
	ErrNotBound = errors.New("dnake: iot info not bound")
)

// Client is a session against one gateway. Bind* must be called before any
// request; requests are blocking and must not be issued from a latency
// sensitive goroutine.
type Client struct {
	httpClient *http.Client
	host       string
	auth       string
	fromDevice string
	toDevice   string
	logger     *zap.Logger
}

func NewClient(httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
	}
}

func EncodeAuth(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%s", username, password)))
}

func (c *Client) BindCredentials(host, username, password string) {
	c.host = host
	c.auth = EncodeAuth(username, password)
	c.logger.Info("bind auth info", zap.String("host", host), zap.String("username", username))
}

func (c *Client) BindIotInfo(fromDevice, toDevice string) {
	c.fromDevice = fromDevice
	c.toDevice = toDevice
	c.logger.Info("bind iot info", zap.String("from", fromDevice), zap.String("to", toDevice))
}

func (c *Client) IotBound() bool {
	return c.fromDevice != "" || c.toDevice != ""
}

func (c *Client) url(path string) string {
	if strings.HasPrefix(c.host, "http://") || strings.HasPrefix(c.host, "https://") {
		return strings.TrimSuffix(c.host, "/") + path
	}
	return fmt.Sprintf("http://%s%s", c.host, path)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+c.auth)
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: http status %d", ErrTransport, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %w", ErrTransport, err)
	}
	return nil
}

// Get issues an authenticated GET and decodes the JSON body into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err == nil {
		err = c.do(req, out)
	}
	if err != nil {
		c.logger.Error("get error", zap.String("path", path), zap.Error(err))
		return err
	}
	return nil
}

// Post sends data to the route endpoint wrapped in the iot envelope. A new
// correlation uuid is set on data.
func (c *Client) Post(ctx context.Context, data Request, out any) error {
	if !c.IotBound() {
		c.logger.Error("post error", zap.String("action", string(data.Action)), zap.Error(ErrNotBound))
		return ErrNotBound
	}
	data.UUID = uuid.NewString()
	body, err := json.Marshal(envelope{
		FromDev: c.fromDevice,
		ToDev:   c.toDevice,
		Data:    data,
	})
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, PATH_ROUTE, bytes.NewReader(body))
	if err == nil {
		err = c.do(req, out)
	}
	if err != nil {
		c.logger.Error("post error", zap.Any("data", data), zap.Error(err))
		return err
	}
	return nil
}

// Execute posts a control request and succeeds only if the gateway result is "ok".
func (c *Client) Execute(ctx context.Context, data Request) error {
	var resp commandResponse
	if err := c.Post(ctx, data, &resp); err != nil {
		return err
	}
	if resp.Result != RESULT_OK {
		err := fmt.Errorf("%w: result %q", ErrRejected, resp.Result)
		c.logger.Warn("command not accepted", zap.Any("data", data), zap.Error(err))
		return err
	}
	return nil
}

func (c *Client) QueryIotInfo(ctx context.Context) (*IotInfo, error) {
	var info IotInfo
	if err := c.Get(ctx, PATH_IOT_INFO, &info); err != nil {
		return nil, err
	}
	if info.IotDeviceName == "" && info.GwIotName == "" {
		return nil, fmt.Errorf("%w: empty iot info", ErrRejected)
	}
	return &info, nil
}

func (c *Client) QueryDeviceList(ctx context.Context) ([]DeviceDescriptor, error) {
	var resp deviceListResponse
	if err := c.Get(ctx, PATH_DEVICE_LIST, &resp); err != nil {
		return nil, err
	}
	return resp.DeviceList, nil
}

// ReadAllDevState fetches the aggregate state list. Entries without devNo
// and devCh are skipped. An entry without devType is kept with an unknown
// payload of type 0.
func (c *Client) ReadAllDevState(ctx context.Context) ([]DeviceState, error) {
	var resp allDevStateResponse
	if err := c.Post(ctx, ReadAllDevState(), &resp); err != nil {
		return nil, err
	}
	states := make([]DeviceState, 0, len(resp.DevList))
	for _, raw := range resp.DevList {
		state, err := DecodeDeviceState(raw, nil)
		if err != nil {
			c.logger.Debug("skipping device state", zap.Error(err))
			continue
		}
		states = append(states, *state)
	}
	return states, nil
}

// ReadDevState queries a single device. The response schema is decoded with
// id as the identity when the gateway omits it.
func (c *Client) ReadDevState(ctx context.Context, id Identity) (*DeviceState, error) {
	var raw json.RawMessage
	if err := c.Post(ctx, ReadDev(id), &raw); err != nil {
		return nil, err
	}
	var resp commandResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrTransport, err)
	}
	if resp.Result != RESULT_OK {
		err := fmt.Errorf("%w: result %q", ErrRejected, resp.Result)
		c.logger.Error("query device status fail", zap.Stringer("device", id), zap.Error(err))
		return nil, err
	}
	state, err := DecodeDeviceState(raw, &id)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrTransport, err)
	}
	return state, nil
}
