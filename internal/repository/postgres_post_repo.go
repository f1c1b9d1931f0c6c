package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hitoshi/clubhub/internal/model"
)

// commonColumns は両コレクションに共通するカラム（SELECT順）。
const commonColumns = "id, username, club_name, club_logo, start_date, end_date, created_at"

// postTable は種別ごとのテーブル名と固有カラム。
type postTable struct {
	name    string
	columns []string
}

var postTables = map[model.Kind]postTable{
	model.KindEvent: {
		name:    "events",
		columns: []string{"event_name", "registration_link", "whatsapp_group", "instagram_link", "linkedin_link"},
	},
	model.KindRecruitment: {
		name:    "recruitments",
		columns: []string{"recruitment_link"},
	},
}

func tableFor(kind model.Kind) (postTable, error) {
	t, ok := postTables[kind]
	if !ok {
		return postTable{}, fmt.Errorf("未知の投稿種別です: %q", kind)
	}
	return t, nil
}

func (t postTable) selectColumns() string {
	return commonColumns + ", " + strings.Join(t.columns, ", ")
}

// PostgresPostRepo はPostgreSQLを使用した投稿リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// コンパイル時にインターフェースの実装を検証する。
var _ PostRepository = (*PostgresPostRepo)(nil)

// FetchAll は指定種別の全投稿をcreated_at降順で返す。
func (r *PostgresPostRepo) FetchAll(ctx context.Context, kind model.Kind) ([]model.Post, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s ORDER BY created_at DESC", t.selectColumns(), t.name),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: 投稿一覧の取得に失敗しました: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		row := newPostRow(kind)
		if err := rows.Scan(row.dest()...); err != nil {
			return nil, fmt.Errorf("%w: 投稿のスキャンに失敗しました: %w", ErrStoreUnavailable, err)
		}
		posts = append(posts, row.result())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: 投稿一覧の読み取り中にエラーが発生しました: %w", ErrStoreUnavailable, err)
	}

	return posts, nil
}

// FindByID は指定IDの投稿を取得する。見つからない場合はnilを返す。
// UUIDとして解釈できないIDは存在しない投稿として扱う。
func (r *PostgresPostRepo) FindByID(ctx context.Context, kind model.Kind, id string) (*model.Post, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	row := newPostRow(kind)
	err = r.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", t.selectColumns(), t.name),
		id,
	).Scan(row.dest()...)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: 投稿の取得に失敗しました: %w", ErrStoreUnavailable, err)
	}

	p := row.result()
	return &p, nil
}

// Insert は投稿を作成する。IDはUUIDで採番し、created_atはDBのnow()を採用する。
func (r *PostgresPostRepo) Insert(ctx context.Context, post *model.Post) error {
	t, err := tableFor(post.Kind)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	id := uuid.New().String()
	cols := append([]string{"id", "username", "club_name", "club_logo", "start_date", "end_date"}, t.columns...)
	args := append([]any{id}, writeArgs(post)...)

	var createdAt time.Time
	err = r.db.QueryRowContext(ctx,
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING created_at",
			t.name, strings.Join(cols, ", "), placeholders(1, len(cols))),
		args...,
	).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("%w: 投稿の作成に失敗しました: %w", ErrStoreWrite, err)
	}

	post.ID = id
	post.CreatedAt = createdAt
	return nil
}

// Update はIDが一致する投稿の内容を上書きする。
func (r *PostgresPostRepo) Update(ctx context.Context, post *model.Post) error {
	t, err := tableFor(post.Kind)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	if _, err := uuid.Parse(post.ID); err != nil {
		return fmt.Errorf("%w: %s", ErrPostNotFound, post.ID)
	}

	cols := append([]string{"username", "club_name", "club_logo", "start_date", "end_date"}, t.columns...)
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = $%d", c, i+2)
	}
	args := append([]any{post.ID}, writeArgs(post)...)

	result, err := r.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s WHERE id = $1", t.name, strings.Join(sets, ", ")),
		args...,
	)
	if err != nil {
		return fmt.Errorf("%w: 投稿の更新に失敗しました: %w", ErrStoreWrite, err)
	}

	return checkAffected(result, post.ID)
}

// Delete は指定IDの投稿を物理削除する。
func (r *PostgresPostRepo) Delete(ctx context.Context, kind model.Kind, id string) error {
	t, err := tableFor(kind)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", ErrPostNotFound, id)
	}

	result, err := r.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id = $1", t.name),
		id,
	)
	if err != nil {
		return fmt.Errorf("%w: 投稿の削除に失敗しました: %w", ErrStoreWrite, err)
	}

	return checkAffected(result, id)
}

// DeleteExpiredBefore はend_dateがcutoffより前の投稿を削除し、削除件数を返す。
func (r *PostgresPostRepo) DeleteExpiredBefore(ctx context.Context, kind model.Kind, cutoff civil.Date) (int64, error) {
	t, err := tableFor(kind)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreWrite, err)
	}

	result, err := r.db.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE end_date < $1", t.name),
		cutoff.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: 期限切れ投稿の削除に失敗しました: %w", ErrStoreWrite, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: 削除件数の取得に失敗しました: %w", ErrStoreWrite, err)
	}
	return n, nil
}

// postRow は1行分のScan先を保持する。
// lib/pqはDATEをtime.Timeとして返すため、スキャン後にcivil.Dateへ変換する。
type postRow struct {
	post       model.Post
	start, end time.Time
}

func newPostRow(kind model.Kind) *postRow {
	row := &postRow{post: model.Post{Kind: kind}}
	switch kind {
	case model.KindEvent:
		row.post.Event = &model.EventFields{}
	case model.KindRecruitment:
		row.post.Recruitment = &model.RecruitmentFields{}
	}
	return row
}

// dest はSELECT列順に対応するScan先を返す。
func (r *postRow) dest() []any {
	p := &r.post
	dest := []any{&p.ID, &p.Username, &p.ClubName, &p.ClubLogo, &r.start, &r.end, &p.CreatedAt}
	switch {
	case p.Event != nil:
		dest = append(dest,
			&p.Event.EventName, &p.Event.RegistrationLink,
			&p.Event.WhatsappGroup, &p.Event.InstagramLink, &p.Event.LinkedinLink,
		)
	case p.Recruitment != nil:
		dest = append(dest, &p.Recruitment.RecruitmentLink)
	}
	return dest
}

// result はDATE値を反映した投稿を返す。
func (r *postRow) result() model.Post {
	r.post.StartDate = civil.DateOf(r.start)
	r.post.EndDate = civil.DateOf(r.end)
	return r.post
}

// writeArgs はINSERT/UPDATEの値（id以外、カラム順）を返す。
func writeArgs(p *model.Post) []any {
	args := []any{p.Username, p.ClubName, p.ClubLogo, p.StartDate.String(), p.EndDate.String()}
	switch p.Kind {
	case model.KindEvent:
		ev := p.Event
		if ev == nil {
			ev = &model.EventFields{}
		}
		args = append(args, ev.EventName, ev.RegistrationLink, ev.WhatsappGroup, ev.InstagramLink, ev.LinkedinLink)
	case model.KindRecruitment:
		args = append(args, p.Link())
	}
	return args
}

// placeholders は "$from, $from+1, ..." をn個生成する。
func placeholders(from, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(ps, ", ")
}

func checkAffected(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: 更新件数の取得に失敗しました: %w", ErrStoreWrite, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrPostNotFound, id)
	}
	return nil
}
