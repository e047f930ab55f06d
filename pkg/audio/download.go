package audio

import (
	"fmt"
	"io"
	"time"

	"github.com/go-resty/resty/v2"
)

var downloadClient = resty.New().SetTimeout(60 * time.Second)

// Download 从URL下载音频，超过maxSize字节时报错
func Download(url string, maxSize int) ([]byte, error) {
	resp, err := downloadClient.R().
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("下载音频失败: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("下载音频失败: HTTP %d", resp.StatusCode())
	}
	if resp.RawResponse.ContentLength > int64(maxSize) {
		return nil, fmt.Errorf("音频文件太大，最大支持%dMB", maxSize/1024/1024)
	}

	// Content-Length可能缺失，边读边检查累计大小
	data, err := io.ReadAll(io.LimitReader(body, int64(maxSize)+1))
	if err != nil {
		return nil, fmt.Errorf("读取音频数据失败: %w", err)
	}
	if len(data) > maxSize {
		return nil, fmt.Errorf("音频文件太大，最大支持%dMB", maxSize/1024/1024)
	}
	return data, nil
}
