package service

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"proxypool/backend/internal/domain"
	"proxypool/backend/internal/monitoring"
	"proxypool/backend/internal/storage"
)

// UploadProgress 批量上传过程中的进度事件
type UploadProgress struct {
	Stage    string `json:"stage"` // found / inserting / done / failed
	FileName string `json:"fileName"`
	Total    int    `json:"total"`
	Inserted int    `json:"inserted"`
	Message  string `json:"message,omitempty"`
}

// ProgressFunc 上传进度回调
type ProgressFunc func(progress UploadProgress)

// UploadService 批量导入代理记录。
//
// 文件内容按行切分，整体去空后按固定批次写入存储；
// 全部写入成功后追加一条上传审计记录。
type UploadService struct {
	proxyRepo   storage.ProxyRepository
	historyRepo storage.UploadHistoryRepository
	batchSize   int
	metrics     *monitoring.Metrics
	log         *zap.Logger
}

// NewUploadService 创建上传服务
func NewUploadService(proxyRepo storage.ProxyRepository, historyRepo storage.UploadHistoryRepository, batchSize int, metrics *monitoring.Metrics, log *zap.Logger) *UploadService {
	if batchSize <= 0 {
		batchSize = 100
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &UploadService{
		proxyRepo:   proxyRepo,
		historyRepo: historyRepo,
		batchSize:   batchSize,
		metrics:     metrics,
		log:         log,
	}
}

// ParseContent 把文件内容切分为有效代理串列表
func (s *UploadService) ParseContent(content string) ([]string, error) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	proxies := make([]string, 0, len(lines))
	for _, line := range lines {
		normalized, err := domain.NormalizeProxyLine(line)
		if err != nil {
			return nil, err
		}
		if normalized == "" {
			continue
		}
		proxies = append(proxies, normalized)
	}
	return proxies, nil
}

// Upload 导入文件内容，按批写入并上报进度。
// 返回写入的记录总数。
func (s *UploadService) Upload(uploadedBy, fileName, content string, progress ProgressFunc) (int, error) {
	notify := func(p UploadProgress) {
		if progress != nil {
			p.FileName = fileName
			progress(p)
		}
	}

	proxies, err := s.ParseContent(content)
	if err != nil {
		notify(UploadProgress{Stage: "failed", Message: err.Error()})
		return 0, err
	}
	total := len(proxies)
	notify(UploadProgress{Stage: "found", Total: total})
	if total == 0 {
		notify(UploadProgress{Stage: "done", Total: 0})
		return 0, nil
	}

	now := time.Now()
	inserted := 0
	for start := 0; start < total; start += s.batchSize {
		end := start + s.batchSize
		if end > total {
			end = total
		}

		records := make([]domain.Proxy, 0, end-start)
		for _, proxyString := range proxies[start:end] {
			records = append(records, domain.Proxy{
				ID:          uuid.New().String(),
				ProxyString: proxyString,
				CreatedAt:   now,
			})
		}
		if err := s.proxyRepo.CreateProxies(records); err != nil {
			notify(UploadProgress{Stage: "failed", Total: total, Inserted: inserted, Message: err.Error()})
			return inserted, err
		}
		inserted += len(records)
		notify(UploadProgress{Stage: "inserting", Total: total, Inserted: inserted})
	}

	history := &domain.UploadHistory{
		ID:         uuid.New().String(),
		UploadedBy: uploadedBy,
		FileName:   fileName,
		ProxyCount: total,
		Position:   domain.UploadPositionAppend,
		CreatedAt:  time.Now(),
	}
	if err := s.historyRepo.CreateUploadHistory(history); err != nil {
		s.log.Error("failed to record upload history",
			zap.String("file_name", fileName),
			zap.Error(err),
		)
	}

	if s.metrics != nil {
		s.metrics.ProxiesUploaded.Add(float64(total))
	}
	s.log.Info("proxies uploaded",
		zap.String("uploaded_by", uploadedBy),
		zap.String("file_name", fileName),
		zap.Int("count", total),
	)
	notify(UploadProgress{Stage: "done", Total: total, Inserted: total})
	return total, nil
}

// History 返回最近的上传记录
func (s *UploadService) History(limit int) ([]domain.UploadHistoryWithUser, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	return s.historyRepo.ListUploadHistory(limit)
}
