package engine

import (
	"strconv"
	"strings"
)

// ParseDeviceSpec 解析GPU配置串为设备列表。
// 空串或auto返回单个默认设备，cpu强制CPU，
// 逗号分隔的GPU编号逐个解析，非法项跳过。
func ParseDeviceSpec(spec string) []string {
	spec = strings.TrimSpace(strings.ToLower(spec))
	switch spec {
	case "", "auto":
		return []string{"cuda:0"}
	case "cpu":
		return []string{"cpu"}
	}

	var devices []string
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id < 0 {
			continue
		}
		devices = append(devices, "cuda:"+strconv.Itoa(id))
	}
	if len(devices) == 0 {
		return []string{"cuda:0"}
	}
	return devices
}
