package sqlinline

const QSelectUserByID = `--sql 1884c304-5343-418d-a21f-fd3b28455bda
select
  id::text, phone, name, plan, credits, images_generated_this_month, month_reset_at,
  image_history, video_history, billing_history, created_at, updated_at
from users
where id = $1::uuid
limit 1;
`

const QUpsertUserByPhone = `--sql 7d61a978-9227-4d6f-b1fa-88ad95120ffe
insert into users (phone, plan, month_reset_at, created_at, updated_at)
values ($1::text, 'free', $2::timestamptz, $3::timestamptz, $3::timestamptz)
on conflict (phone) do update set updated_at = excluded.updated_at
returning
  id::text, phone, name, plan, credits, images_generated_this_month, month_reset_at,
  image_history, video_history, billing_history, created_at, updated_at;
`

const QUserExists = `--sql 16bdabd7-0db6-45b2-bddb-d00534c334d2
select exists(select 1 from users where id = $1::uuid);
`

// QAppendHistory appends $3 (a one-element jsonb array) to the history list
// chosen by $2 unless an entry with id $4 is already there or was deleted by
// the user. Image entries also count towards the monthly usage counter.
const QAppendHistory = `--sql ddd904fb-4759-426f-b6db-c921025ae37a
update users
set image_history = case when $2::text = 'image' then image_history || $3::jsonb else image_history end,
    video_history = case when $2::text = 'video' then video_history || $3::jsonb else video_history end,
    images_generated_this_month = images_generated_this_month + case when $2::text = 'image' then 1 else 0 end,
    updated_at = now()
where id = $1::uuid
  and not deleted_history ? $4::text
  and not exists (
    select 1
    from jsonb_array_elements(case when $2::text = 'image' then image_history else video_history end) as e
    where e->>'id' = $4::text
  );
`

// QDeleteHistory removes entry $3 and records its id in deleted_history so a
// later replay of the owning task does not bring it back.
const QDeleteHistory = `--sql 41c3df24-62c2-42b6-9d2f-4b3217674870
update users
set image_history = case when $2::text = 'image' then (
      select coalesce(jsonb_agg(t.e order by t.ord), '[]'::jsonb)
      from jsonb_array_elements(image_history) with ordinality as t(e, ord)
      where t.e->>'id' <> $3::text
    ) else image_history end,
    video_history = case when $2::text = 'video' then (
      select coalesce(jsonb_agg(t.e order by t.ord), '[]'::jsonb)
      from jsonb_array_elements(video_history) with ordinality as t(e, ord)
      where t.e->>'id' <> $3::text
    ) else video_history end,
    deleted_history = deleted_history || jsonb_build_array($3::text),
    updated_at = now()
where id = $1::uuid
  and exists (
    select 1
    from jsonb_array_elements(case when $2::text = 'image' then image_history else video_history end) as e
    where e->>'id' = $3::text
  );
`

const QAppendBilling = `--sql 6e676d27-d79f-442e-9fec-393691f49384
update users
set billing_history = billing_history || $2::jsonb,
    updated_at = now()
where id = $1::uuid;
`
