package realtime

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mmeshcher/bookstore/internal/model"
)

const pushPath = "/api/push/"

// GatewayClient инкапсулирует HTTP-взаимодействие со шлюзом живых соединений.
type GatewayClient struct {
	baseURL string
	client  *resty.Client
}

// NewGatewayClient создаёт клиент шлюза по указанному адресу.
func NewGatewayClient(baseURL string) *GatewayClient {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	client := resty.New().
		SetTimeout(5*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	return &GatewayClient{
		baseURL: base,
		client:  client,
	}
}

// Push отправляет уведомление в шлюз. Ответ 404 означает, что у участника нет живого соединения.
func (c *GatewayClient) Push(ctx context.Context, n model.Notification) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("realtime gateway not configured")
	}

	url := c.baseURL + pushPath + strconv.FormatInt(n.MemberID, 10)

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(NewEvent(n)).
		Post(url)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return ErrNoConnection
	case resp.StatusCode() < 200 || resp.StatusCode() >= 300:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode())
	}

	return nil
}
