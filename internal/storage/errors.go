package storage

import (
	"errors"
	"slices"
	"strings"

	"github.com/minio/minio-go/v7"
)

// 头像与导出图片读取时需要区分的 S3 错误码。
var (
	missingObjectCodes = []string{"nosuchkey", "notfound"}
	missingBucketCodes = []string{"nosuchbucket"}
)

// IsNoSuchKey 判断对象是否不存在。头像被删除后名片退回占位图，依赖这个判断。
func IsNoSuchKey(err error) bool {
	return matchesCode(err, missingObjectCodes) ||
		messageContains(err, "nosuchkey", "specified key does not exist")
}

// IsNoSuchBucket 判断 bucket 是否不存在，这属于部署错误而不是数据缺失。
func IsNoSuchBucket(err error) bool {
	return matchesCode(err, missingBucketCodes) ||
		messageContains(err, "nosuchbucket", "specified bucket does not exist")
}

func matchesCode(err error, codes []string) bool {
	var minioErr minio.ErrorResponse
	if !errors.As(err, &minioErr) {
		return false
	}
	return slices.Contains(codes, strings.ToLower(strings.TrimSpace(minioErr.Code)))
}

// messageContains 兜底处理被网关包装成纯文本的错误。
func messageContains(err error, fragments ...string) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, fragment := range fragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}
